package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quillforge/proposal-api/internal/dto"
	"github.com/quillforge/proposal-api/pkg/export"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
)

func newExportService(ledger *memLedger) (*ExportService, *SendService) {
	versionSvc, _, _, _ := newVersionService(ledger)
	sendSvc, _, _, _ := newSendService(ledger)
	return NewExportService(versionSvc, sendSvc, export.NewPDFExporter("Quillforge"), export.NewCSVExporter(), zap.NewNop()), sendSvc
}

func TestExportVersionPDF(t *testing.T) {
	ledger := newMemLedger()
	seedProposal(ledger, "body to render")
	svc, _ := newExportService(ledger)

	payload, filename, err := svc.ExportVersionPDF(context.Background(), "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, "proposal-p1-v1.pdf", filename)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportVersionPDFUnknownVersion(t *testing.T) {
	ledger := newMemLedger()
	seedProposal(ledger, "body")
	svc, _ := newExportService(ledger)

	_, _, err := svc.ExportVersionPDF(context.Background(), "p1", 42)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportSendHistoryCSV(t *testing.T) {
	ledger := newMemLedger()
	seedProposal(ledger, "body sent to the client")
	svc, sendSvc := newExportService(ledger)

	_, err := sendSvc.SendVersion(context.Background(), "p1", 1, dto.SendProposalRequest{
		SentTo:        "client@example.com",
		RecipientName: "Client",
		Subject:       "Proposal",
	}, "u1")
	require.NoError(t, err)

	payload, filename, err := svc.ExportSendHistoryCSV(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "proposal-p1-sends.csv", filename)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "send_id")
	assert.Contains(t, lines[1], "client@example.com")
	// document bodies never leave through this export
	assert.NotContains(t, string(payload), "body sent to the client")
}

package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quillforge/proposal-api/internal/dto"
	"github.com/quillforge/proposal-api/internal/middleware"
	"github.com/quillforge/proposal-api/internal/models"
	"github.com/quillforge/proposal-api/internal/repository"
	"github.com/quillforge/proposal-api/internal/service"
	"github.com/quillforge/proposal-api/pkg/export"
	"github.com/quillforge/proposal-api/pkg/response"
	"github.com/quillforge/proposal-api/pkg/sharelink"
)

// ledgerStub backs the proposal and version stores for handler tests.
type ledgerStub struct {
	proposals map[string]*models.Proposal
	versions  map[string][]models.ProposalVersion
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{
		proposals: make(map[string]*models.Proposal),
		versions:  make(map[string][]models.ProposalVersion),
	}
}

func (l *ledgerStub) Create(ctx context.Context, proposal *models.Proposal, initial *models.ProposalVersion) error {
	if proposal.ID == "" {
		proposal.ID = fmt.Sprintf("p%d", len(l.proposals)+1)
	}
	proposal.CurrentVersion = 1
	initial.ProposalID = proposal.ID
	initial.Version = 1
	cp := *proposal
	l.proposals[proposal.ID] = &cp
	l.versions[proposal.ID] = []models.ProposalVersion{*initial}
	return nil
}

func (l *ledgerStub) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	p, ok := l.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (l *ledgerStub) MarkUnsavedChanges(ctx context.Context, id string, dirty bool) error {
	if p, ok := l.proposals[id]; ok {
		p.HasUnsavedChanges = dirty
	}
	return nil
}

func (l *ledgerStub) Append(ctx context.Context, params repository.AppendVersionParams) error {
	p, ok := l.proposals[params.Snapshot.ProposalID]
	if !ok || p.CurrentVersion != params.PrevVersion {
		return sql.ErrNoRows
	}
	params.Snapshot.Version = params.PrevVersion + 1
	p.CurrentVersion = params.Snapshot.Version
	p.CurrentContent = params.Snapshot.Content
	p.CurrentContentHash = params.ContentHash
	l.versions[p.ID] = append(l.versions[p.ID], *params.Snapshot)
	return nil
}

func (l *ledgerStub) GetByVersion(ctx context.Context, proposalID string, version int) (*models.ProposalVersion, error) {
	for i := range l.versions[proposalID] {
		if l.versions[proposalID][i].Version == version {
			cp := l.versions[proposalID][i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (l *ledgerStub) ListByProposal(ctx context.Context, proposalID string) ([]models.ProposalVersion, error) {
	snapshots := append([]models.ProposalVersion(nil), l.versions[proposalID]...)
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}
	return snapshots, nil
}

// sendLedgerStub backs the send store for handler tests.
type sendLedgerStub struct {
	sends map[string]*models.ProposalSend
	order []string
}

func newSendLedgerStub() *sendLedgerStub {
	return &sendLedgerStub{sends: make(map[string]*models.ProposalSend)}
}

func (s *sendLedgerStub) Record(ctx context.Context, send *models.ProposalSend) error {
	if send.SentAt.IsZero() {
		send.SentAt = time.Now().UTC()
	}
	cp := *send
	s.sends[send.ID] = &cp
	s.order = append(s.order, send.ID)
	return nil
}

func (s *sendLedgerStub) GetByID(ctx context.Context, id string) (*models.ProposalSend, error) {
	send, ok := s.sends[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *send
	return &cp, nil
}

func (s *sendLedgerStub) ListByProposal(ctx context.Context, proposalID string, limit int) ([]models.ProposalSend, error) {
	var out []models.ProposalSend
	for i := len(s.order) - 1; i >= 0; i-- {
		if send := s.sends[s.order[i]]; send.ProposalID == proposalID {
			out = append(out, *send)
		}
	}
	return out, nil
}

func (s *sendLedgerStub) UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error {
	send, ok := s.sends[params.ID]
	if !ok || send.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	send.Status = params.Status
	if params.ViewedAt != nil {
		send.ViewedAt = params.ViewedAt
	}
	if params.RespondedAt != nil {
		send.RespondedAt = params.RespondedAt
	}
	return nil
}

type testStack struct {
	ledger   *ledgerStub
	sends    *sendLedgerStub
	proposal *ProposalHandler
	send     *SendHandler
}

func newTestStack() *testStack {
	ledger := newLedgerStub()
	sends := newSendLedgerStub()
	signer := sharelink.NewSigner("test-secret", time.Hour)
	versionSvc := service.NewVersionService(ledger, ledger, nil, nil, nil, zap.NewNop(), service.VersionServiceConfig{})
	sendSvc := service.NewSendService(ledger, ledger, sends, nil, nil, signer, nil, nil, zap.NewNop(), service.SendServiceConfig{})
	exportSvc := service.NewExportService(versionSvc, sendSvc, export.NewPDFExporter("Quillforge"), export.NewCSVExporter(), zap.NewNop())
	return &testStack{
		ledger:   ledger,
		sends:    sends,
		proposal: NewProposalHandler(versionSvc, exportSvc),
		send:     NewSendHandler(sendSvc, exportSvc),
	}
}

func (ts *testStack) seed(content string) {
	ts.ledger.proposals["p1"] = &models.Proposal{
		ID:                 "p1",
		OwnerID:            "u1",
		Title:              "Website redesign",
		CurrentVersion:     1,
		CurrentContent:     content,
		CurrentContentHash: service.Fingerprint(content),
	}
	ts.ledger.versions["p1"] = []models.ProposalVersion{{
		ID:         "v1",
		ProposalID: "p1",
		Version:    1,
		Content:    content,
		Title:      "Website redesign",
		CreatedBy:  "u1",
	}}
}

func newTestContext(t *testing.T, method, path string, body []byte, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	c.Request = req
	c.Params = params
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleAuthor})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestProposalHandlerCreate(t *testing.T) {
	ts := newTestStack()
	payload, _ := json.Marshal(dto.CreateProposalRequest{Title: "Website redesign", Content: "Draft body"})
	c, w := newTestContext(t, http.MethodPost, "/proposals", payload, nil)

	ts.proposal.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	envelope := decodeEnvelope(t, w)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["current_version"])
}

func TestProposalHandlerCreateInvalidBody(t *testing.T) {
	ts := newTestStack()
	c, w := newTestContext(t, http.MethodPost, "/proposals", []byte(`{"title":`), nil)

	ts.proposal.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProposalHandlerSaveVersion(t *testing.T) {
	ts := newTestStack()
	ts.seed("original body")

	payload, _ := json.Marshal(dto.SaveVersionRequest{Content: "a completely different body with many more words in it"})
	c, w := newTestContext(t, http.MethodPost, "/proposals/p1/versions", payload, gin.Params{{Key: "id", Value: "p1"}})

	ts.proposal.SaveVersion(c)
	require.Equal(t, http.StatusCreated, w.Code)

	// saving the same content again is a no-op answered with 200
	c, w = newTestContext(t, http.MethodPost, "/proposals/p1/versions", payload, gin.Params{{Key: "id", Value: "p1"}})
	ts.proposal.SaveVersion(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, false, data["created"])
	assert.Equal(t, float64(2), data["version"])
}

func TestProposalHandlerGetNotFound(t *testing.T) {
	ts := newTestStack()
	c, w := newTestContext(t, http.MethodGet, "/proposals/missing", nil, gin.Params{{Key: "id", Value: "missing"}})

	ts.proposal.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProposalHandlerGetVersionBadNumber(t *testing.T) {
	ts := newTestStack()
	ts.seed("body")
	c, w := newTestContext(t, http.MethodGet, "/proposals/p1/versions/abc", nil,
		gin.Params{{Key: "id", Value: "p1"}, {Key: "version", Value: "abc"}})

	ts.proposal.GetVersion(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProposalHandlerListVersionsMeta(t *testing.T) {
	ts := newTestStack()
	ts.seed("body")
	c, w := newTestContext(t, http.MethodGet, "/proposals/p1/versions", nil, gin.Params{{Key: "id", Value: "p1"}})

	ts.proposal.ListVersions(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.Equal(t, float64(1), envelope.Meta["count"])
}

func TestProposalHandlerExportVersionPDF(t *testing.T) {
	ts := newTestStack()
	ts.seed("body to export")
	c, w := newTestContext(t, http.MethodGet, "/proposals/p1/versions/1/export", nil,
		gin.Params{{Key: "id", Value: "p1"}, {Key: "version", Value: "1"}})

	ts.proposal.ExportVersionPDF(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "proposal-p1-v1.pdf")
}

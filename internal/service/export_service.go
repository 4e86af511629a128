package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/quillforge/proposal-api/pkg/export"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
)

// ExportService renders snapshots and send history into downloadable files.
type ExportService struct {
	versions *VersionService
	sends    *SendService
	pdf      *export.PDFExporter
	csv      *export.CSVExporter
	logger   *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(versions *VersionService, sends *SendService, pdf *export.PDFExporter, csv *export.CSVExporter, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{versions: versions, sends: sends, pdf: pdf, csv: csv, logger: logger}
}

// ExportVersionPDF renders one snapshot into a PDF document.
func (s *ExportService) ExportVersionPDF(ctx context.Context, proposalID string, version int) ([]byte, string, error) {
	snapshot, err := s.versions.GetVersionContent(ctx, proposalID, version)
	if err != nil {
		return nil, "", err
	}

	payload, err := s.pdf.RenderSnapshot(export.SnapshotDocument{
		Title:       snapshot.Title,
		Description: snapshot.Description,
		Content:     snapshot.Content,
		Version:     snapshot.Version,
		CreatedAt:   snapshot.CreatedAt,
		WordCount:   snapshot.WordCount,
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}

	filename := fmt.Sprintf("proposal-%s-v%d.pdf", proposalID, snapshot.Version)
	return payload, filename, nil
}

// ExportSendHistoryCSV renders the send ledger into a CSV file. Embedded
// content stays out of the export; the rows describe transmissions, not
// documents.
func (s *ExportService) ExportSendHistoryCSV(ctx context.Context, proposalID string) ([]byte, string, error) {
	entries, err := s.sends.GetSendHistory(ctx, proposalID)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"send_id", "version", "sent_at", "sent_to", "recipient_name", "subject", "status", "method", "word_count", "viewed_at", "responded_at"}
	records := make([][]string, 0, len(entries))
	for _, entry := range entries {
		viewedAt := ""
		if entry.ViewedAt != nil {
			viewedAt = entry.ViewedAt.Format("2006-01-02 15:04:05")
		}
		respondedAt := ""
		if entry.RespondedAt != nil {
			respondedAt = entry.RespondedAt.Format("2006-01-02 15:04:05")
		}
		records = append(records, []string{
			entry.ID,
			strconv.Itoa(entry.Version),
			entry.SentAt.Format("2006-01-02 15:04:05"),
			entry.SentTo,
			entry.RecipientName,
			entry.Subject,
			string(entry.Status),
			string(entry.SendMethod),
			strconv.Itoa(entry.EmbeddedWordCount),
			viewedAt,
			respondedAt,
		})
	}

	payload, err := s.csv.Render(headers, records)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}

	filename := fmt.Sprintf("proposal-%s-sends.csv", proposalID)
	return payload, filename, nil
}

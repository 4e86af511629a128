package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quillforge/proposal-api/internal/models"
)

const selectSendColumns = `SELECT id, proposal_id, version, embedded_content, embedded_title, embedded_description, embedded_word_count, sent_at, sent_to, recipient_name, subject, message, status, sent_by, send_method, share_token, viewed_at, responded_at
	FROM proposal_sends`

// SendRepository persists the append-only send ledger.
type SendRepository struct {
	db *sqlx.DB
}

// NewSendRepository constructs the repository.
func NewSendRepository(db *sqlx.DB) *SendRepository {
	return &SendRepository{db: db}
}

// Record inserts the send row and locks the transmitted snapshot in one
// transaction. The lock update asserts the snapshot still exists; zero rows
// affected rolls everything back with sql.ErrNoRows so no send record can
// reference a missing version.
func (r *SendRepository) Record(ctx context.Context, send *models.ProposalSend) error {
	if send.ID == "" {
		send.ID = uuid.NewString()
	}
	if send.SentAt.IsZero() {
		send.SentAt = time.Now().UTC()
	}
	if send.Status == "" {
		send.Status = models.SendStatusSent
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record send: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertSend = `INSERT INTO proposal_sends
	(id, proposal_id, version, embedded_content, embedded_title, embedded_description, embedded_word_count, sent_at, sent_to, recipient_name, subject, message, status, sent_by, send_method, share_token, viewed_at, responded_at)
	VALUES (:id, :proposal_id, :version, :embedded_content, :embedded_title, :embedded_description, :embedded_word_count, :sent_at, :sent_to, :recipient_name, :subject, :message, :status, :sent_by, :send_method, :share_token, :viewed_at, :responded_at)`
	if _, err := tx.NamedExecContext(ctx, insertSend, send); err != nil {
		return fmt.Errorf("record send: %w", err)
	}

	const lockVersion = `UPDATE proposal_versions
	SET is_locked = TRUE, is_sent = TRUE, sent_count = sent_count + 1
	WHERE proposal_id = $1 AND version = $2`
	result, err := tx.ExecContext(ctx, lockVersion, send.ProposalID, send.Version)
	if err != nil {
		return fmt.Errorf("lock sent version: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lock rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record send: %w", err)
	}
	return nil
}

// GetByID fetches a send record by identifier.
func (r *SendRepository) GetByID(ctx context.Context, id string) (*models.ProposalSend, error) {
	query := selectSendColumns + ` WHERE id = $1 LIMIT 1`
	var send models.ProposalSend
	if err := r.db.GetContext(ctx, &send, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find send by id: %w", err)
	}
	return &send, nil
}

// ListByProposal returns send records newest sent_at first.
func (r *SendRepository) ListByProposal(ctx context.Context, proposalID string, limit int) ([]models.ProposalSend, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	query := selectSendColumns + fmt.Sprintf(` WHERE proposal_id = $1 ORDER BY sent_at DESC LIMIT %d`, limit)
	var sends []models.ProposalSend
	if err := r.db.SelectContext(ctx, &sends, query, proposalID); err != nil {
		return nil, fmt.Errorf("list sends: %w", err)
	}
	return sends, nil
}

// UpdateStatusParams groups the mutable recipient-activity columns.
type UpdateStatusParams struct {
	ID          string
	FromStatus  models.SendStatus
	Status      models.SendStatus
	ViewedAt    *time.Time
	RespondedAt *time.Time
}

// UpdateStatus advances recipient-side status. The update is guarded by the
// previously read status; a concurrent transition surfaces as sql.ErrNoRows.
func (r *SendRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) error {
	const query = `UPDATE proposal_sends
	SET status = $3, viewed_at = COALESCE($4, viewed_at), responded_at = COALESCE($5, responded_at)
	WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, params.ID, params.FromStatus, params.Status, params.ViewedAt, params.RespondedAt)
	if err != nil {
		return fmt.Errorf("update send status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check send status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

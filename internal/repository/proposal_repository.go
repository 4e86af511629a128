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

// ProposalRepository persists the mutable working proposal rows.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a proposal together with its initial version snapshot in one
// transaction, so a proposal can never be observed without a snapshot at its
// current version.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.Proposal, initial *models.ProposalVersion) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if initial.ID == "" {
		initial.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	proposal.UpdatedAt = now
	proposal.CurrentVersion = 1
	initial.ProposalID = proposal.ID
	initial.Version = 1
	if initial.CreatedAt.IsZero() {
		initial.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create proposal: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertProposal = `INSERT INTO proposals
	(id, owner_id, title, description, current_version, current_content, current_content_hash, has_unsaved_changes, created_at, updated_at)
	VALUES (:id, :owner_id, :title, :description, :current_version, :current_content, :current_content_hash, :has_unsaved_changes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertProposal, proposal); err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}

	if _, err := tx.NamedExecContext(ctx, insertVersionQuery, initial); err != nil {
		return fmt.Errorf("create initial version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create proposal: %w", err)
	}
	return nil
}

// GetByID fetches a proposal by identifier.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	const query = `SELECT id, owner_id, title, description, current_version, current_content, current_content_hash, has_unsaved_changes, created_at, updated_at
	FROM proposals WHERE id = $1 LIMIT 1`
	var proposal models.Proposal
	if err := r.db.GetContext(ctx, &proposal, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find proposal by id: %w", err)
	}
	return &proposal, nil
}

// MarkUnsavedChanges flags the working copy as dirty without versioning it.
func (r *ProposalRepository) MarkUnsavedChanges(ctx context.Context, id string, dirty bool) error {
	const query = `UPDATE proposals SET has_unsaved_changes = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, dirty, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark unsaved changes: %w", err)
	}
	return nil
}

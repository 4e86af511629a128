package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quillforge/proposal-api/internal/models"
)

// ErrVersionRace is returned when a concurrent writer allocated the version
// number this append was targeting. Callers retry the whole read-classify-
// append cycle against the fresh current version.
var ErrVersionRace = errors.New("proposal version changed since read")

const insertVersionQuery = `INSERT INTO proposal_versions
	(id, proposal_id, version, content, title, description, change_summary, change_type, created_by, created_at, word_count, character_count, is_sent, sent_count, is_locked)
	VALUES (:id, :proposal_id, :version, :content, :title, :description, :change_summary, :change_type, :created_by, :created_at, :word_count, :character_count, :is_sent, :sent_count, :is_locked)`

const selectVersionColumns = `SELECT id, proposal_id, version, content, title, description, change_summary, change_type, created_by, created_at, word_count, character_count, is_sent, sent_count, is_locked
	FROM proposal_versions`

// VersionRepository persists the append-only version ledger.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository constructs the repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// AppendVersionParams carries the snapshot plus the optimistic check basis.
type AppendVersionParams struct {
	PrevVersion int
	ContentHash string
	Snapshot    *models.ProposalVersion
}

// Append inserts a snapshot and advances the proposal's working fields in one
// transaction. The proposal update is guarded by the previously read version
// number; if another writer advanced it first the transaction rolls back with
// ErrVersionRace and nothing is persisted.
func (r *VersionRepository) Append(ctx context.Context, params AppendVersionParams) error {
	snapshot := params.Snapshot
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	snapshot.Version = params.PrevVersion + 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append version: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const updateProposal = `UPDATE proposals
	SET current_version = $2, current_content = $3, current_content_hash = $4, title = $5, description = $6, has_unsaved_changes = FALSE, updated_at = $7
	WHERE id = $1 AND current_version = $8`
	result, err := tx.ExecContext(ctx, updateProposal,
		snapshot.ProposalID,
		snapshot.Version,
		snapshot.Content,
		params.ContentHash,
		snapshot.Title,
		snapshot.Description,
		time.Now().UTC(),
		params.PrevVersion,
	)
	if err != nil {
		return fmt.Errorf("advance proposal version: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check proposal version rows: %w", err)
	}
	if rows == 0 {
		return ErrVersionRace
	}

	if _, err := tx.NamedExecContext(ctx, insertVersionQuery, snapshot); err != nil {
		return fmt.Errorf("append version snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append version: %w", err)
	}
	return nil
}

// GetByVersion fetches one snapshot by proposal and version number.
func (r *VersionRepository) GetByVersion(ctx context.Context, proposalID string, version int) (*models.ProposalVersion, error) {
	query := selectVersionColumns + ` WHERE proposal_id = $1 AND version = $2 LIMIT 1`
	var snapshot models.ProposalVersion
	if err := r.db.GetContext(ctx, &snapshot, query, proposalID, version); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find version %d: %w", version, err)
	}
	return &snapshot, nil
}

// ListByProposal returns all snapshots newest version first.
func (r *VersionRepository) ListByProposal(ctx context.Context, proposalID string) ([]models.ProposalVersion, error) {
	query := selectVersionColumns + ` WHERE proposal_id = $1 ORDER BY version DESC`
	var snapshots []models.ProposalVersion
	if err := r.db.SelectContext(ctx, &snapshots, query, proposalID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return snapshots, nil
}

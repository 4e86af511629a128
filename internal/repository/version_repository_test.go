package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/proposal-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func versionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "proposal_id", "version", "content", "title", "description", "change_summary", "change_type", "created_by", "created_at", "word_count", "character_count", "is_sent", "sent_count", "is_locked"})
}

func TestVersionRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVersionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE proposals").
		WithArgs("p1", 3, "new content", "abc123", "Title", "Desc", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO proposal_versions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	snapshot := &models.ProposalVersion{
		ProposalID:  "p1",
		Content:     "new content",
		Title:       "Title",
		Description: "Desc",
		ChangeType:  models.ChangeTypeContentEdit,
		CreatedBy:   "u1",
	}
	err := repo.Append(context.Background(), AppendVersionParams{
		PrevVersion: 2,
		ContentHash: "abc123",
		Snapshot:    snapshot,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Version)
	assert.NotEmpty(t, snapshot.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepositoryAppendLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVersionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE proposals").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Append(context.Background(), AppendVersionParams{
		PrevVersion: 2,
		ContentHash: "abc123",
		Snapshot:    &models.ProposalVersion{ProposalID: "p1", Content: "new content"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionRace))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepositoryGetByVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVersionRepository(db)

	rows := versionRows().
		AddRow("v1", "p1", 2, "body", "Title", "", "Added 20 words, expanded content", "content_edit", "u1", time.Now(), 20, 120, false, 0, false)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE proposal_id = $1 AND version = $2")).
		WithArgs("p1", 2).
		WillReturnRows(rows)

	snapshot, err := repo.GetByVersion(context.Background(), "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Version)
	assert.Equal(t, "body", snapshot.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepositoryGetByVersionNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVersionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE proposal_id = $1 AND version = $2")).
		WithArgs("p1", 99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByVersion(context.Background(), "p1", 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepositoryListByProposal(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewVersionRepository(db)

	rows := versionRows().
		AddRow("v2", "p1", 2, "b", "Title", "", "Minor text edits", "minor_edit", "u1", time.Now(), 10, 50, false, 0, false).
		AddRow("v1", "p1", 1, "a", "Title", "", "Initial version", "created", "u1", time.Now(), 9, 45, true, 1, true)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY version DESC")).
		WithArgs("p1").
		WillReturnRows(rows)

	snapshots, err := repo.ListByProposal(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, 2, snapshots[0].Version)
	assert.Equal(t, 1, snapshots[1].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

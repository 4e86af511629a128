package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quillforge/proposal-api/internal/dto"
	"github.com/quillforge/proposal-api/internal/models"
	"github.com/quillforge/proposal-api/internal/repository"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
)

type proposalStore interface {
	Create(ctx context.Context, proposal *models.Proposal, initial *models.ProposalVersion) error
	GetByID(ctx context.Context, id string) (*models.Proposal, error)
	MarkUnsavedChanges(ctx context.Context, id string, dirty bool) error
}

type versionStore interface {
	Append(ctx context.Context, params repository.AppendVersionParams) error
	GetByVersion(ctx context.Context, proposalID string, version int) (*models.ProposalVersion, error)
	ListByProposal(ctx context.Context, proposalID string) ([]models.ProposalVersion, error)
}

type historyCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type ledgerObserver interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	RecordVersionCreated()
	RecordVersionRace()
}

// VersionServiceConfig tunes history caching.
type VersionServiceConfig struct {
	HistoryCacheTTL time.Duration
}

// VersionService is the version manager: the only component allowed to mutate
// a proposal's working fields and allocate version numbers.
type VersionService struct {
	proposals proposalStore
	versions  versionStore
	cache     historyCache
	audit     auditLogger
	metrics   ledgerObserver
	logger    *zap.Logger
	cfg       VersionServiceConfig
}

// NewVersionService constructs the service.
func NewVersionService(proposals proposalStore, versions versionStore, cache historyCache, audit auditLogger, metrics ledgerObserver, logger *zap.Logger, cfg VersionServiceConfig) *VersionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryCacheTTL <= 0 {
		cfg.HistoryCacheTTL = 5 * time.Minute
	}
	return &VersionService{
		proposals: proposals,
		versions:  versions,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateProposal creates a working proposal with its version 1 snapshot.
func (s *VersionService) CreateProposal(ctx context.Context, req dto.CreateProposalRequest, actorID string) (*models.Proposal, error) {
	if req.Title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}

	proposal := &models.Proposal{
		OwnerID:            actorID,
		Title:              req.Title,
		Description:        req.Description,
		CurrentContent:     req.Content,
		CurrentContentHash: Fingerprint(req.Content),
		HasUnsavedChanges:  false,
	}
	initial := &models.ProposalVersion{
		Content:        req.Content,
		Title:          req.Title,
		Description:    req.Description,
		ChangeSummary:  "Initial version",
		ChangeType:     models.ChangeTypeCreated,
		CreatedBy:      actorID,
		WordCount:      countWords(req.Content),
		CharacterCount: len(req.Content),
	}
	if err := s.proposals.Create(ctx, proposal, initial); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create proposal")
	}

	s.emitAudit(ctx, actorID, models.AuditActionProposalCreate, proposal.ID, map[string]interface{}{"version": 1})
	return proposal, nil
}

// GetProposal fetches the working proposal.
func (s *VersionService) GetProposal(ctx context.Context, id string) (*models.Proposal, error) {
	proposal, err := s.proposals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return proposal, nil
}

// HasChanged reports whether new content differs from the stored working
// copy. Fails open: when the proposal cannot be located the answer is true,
// so callers default to creating a version rather than discarding an edit.
func (s *VersionService) HasChanged(ctx context.Context, proposalID, newContent string) bool {
	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return true
	}
	return Fingerprint(newContent) != proposal.CurrentContentHash
}

// CreateVersion snapshots the given content as the next version. Saving
// identical content is an idempotent no-op returning the current version.
// A lost race on version allocation is retried once against the fresh state
// before surfacing a conflict.
func (s *VersionService) CreateVersion(ctx context.Context, proposalID string, req dto.SaveVersionRequest, actorID string) (*dto.SaveVersionResponse, error) {
	if proposalID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposal id is required")
	}
	changeType := req.ChangeType
	if changeType == "" {
		changeType = models.ChangeTypeContentEdit
	}
	if !changeType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported change type: %s", changeType))
	}
	if req.Content == "" && changeType != models.ChangeTypeCreated {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "content is required for non-initial versions")
	}

	for attempt := 0; attempt < 2; attempt++ {
		proposal, err := s.proposals.GetByID(ctx, proposalID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
		}

		hash := Fingerprint(req.Content)
		if changeType != models.ChangeTypeCreated && hash == proposal.CurrentContentHash {
			return &dto.SaveVersionResponse{ProposalID: proposal.ID, Version: proposal.CurrentVersion, Created: false}, nil
		}

		summary := "Initial version"
		latest, err := s.versions.GetByVersion(ctx, proposal.ID, proposal.CurrentVersion)
		switch {
		case err == nil:
			summary = ClassifyChange(latest.Content, req.Content)
		case errors.Is(err, sql.ErrNoRows):
			// no prior snapshot, keep the default summary
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest version")
		}

		title := req.Title
		if title == "" {
			title = proposal.Title
		}
		description := req.Description
		if description == "" {
			description = proposal.Description
		}

		snapshot := &models.ProposalVersion{
			ProposalID:     proposal.ID,
			Content:        req.Content,
			Title:          title,
			Description:    description,
			ChangeSummary:  summary,
			ChangeType:     changeType,
			CreatedBy:      actorID,
			WordCount:      countWords(req.Content),
			CharacterCount: len(req.Content),
		}

		err = s.versions.Append(ctx, repository.AppendVersionParams{
			PrevVersion: proposal.CurrentVersion,
			ContentHash: hash,
			Snapshot:    snapshot,
		})
		if errors.Is(err, repository.ErrVersionRace) {
			if s.metrics != nil {
				s.metrics.RecordVersionRace()
			}
			s.logger.Warn("version allocation race, retrying",
				zap.String("proposal_id", proposal.ID),
				zap.Int("prev_version", proposal.CurrentVersion))
			continue
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append version")
		}

		if s.metrics != nil {
			s.metrics.RecordVersionCreated()
		}
		s.invalidateHistory(ctx, proposal.ID)
		s.emitAudit(ctx, actorID, models.AuditActionVersionCreate, proposal.ID, map[string]interface{}{
			"version":     snapshot.Version,
			"change_type": changeType,
		})
		return &dto.SaveVersionResponse{ProposalID: proposal.ID, Version: snapshot.Version, Created: true}, nil
	}

	return nil, appErrors.FromError(appErrors.ErrConflict)
}

// MarkDirty records that the working copy has edits not yet versioned.
func (s *VersionService) MarkDirty(ctx context.Context, proposalID string) error {
	if err := s.proposals.MarkUnsavedChanges(ctx, proposalID, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag unsaved changes")
	}
	return nil
}

// GetVersionContent returns one snapshot by version number.
func (s *VersionService) GetVersionContent(ctx context.Context, proposalID string, version int) (*models.ProposalVersion, error) {
	snapshot, err := s.versions.GetByVersion(ctx, proposalID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("version %d not found", version))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}
	return snapshot, nil
}

// GetVersionHistory returns all snapshots newest first.
func (s *VersionService) GetVersionHistory(ctx context.Context, proposalID string) ([]models.ProposalVersion, error) {
	if _, err := s.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("proposal:%s:versions", proposalID)
	if s.cache != nil {
		start := time.Now()
		var cached []models.ProposalVersion
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.observeCache(true, time.Since(start))
			return cached, nil
		}
		s.observeCache(false, time.Since(start))
	}

	snapshots, err := s.versions.ListByProposal(ctx, proposalID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, snapshots, s.cfg.HistoryCacheTTL); err != nil {
			s.logger.Warn("failed to cache version history", zap.Error(err))
		}
	}
	return snapshots, nil
}

func (s *VersionService) invalidateHistory(ctx context.Context, proposalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("proposal:%s:*", proposalID)); err != nil {
		s.logger.Warn("failed to invalidate history cache", zap.Error(err))
	}
}

func (s *VersionService) observeCache(hit bool, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit, duration)
	}
}

func (s *VersionService) emitAudit(ctx context.Context, actorID, action, proposalID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "proposal",
		ResourceID: &proposalID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "version-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

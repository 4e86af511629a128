package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillforge/proposal-api/internal/dto"
	"github.com/quillforge/proposal-api/internal/models"
	"github.com/quillforge/proposal-api/internal/repository"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
)

type sendStore interface {
	Record(ctx context.Context, send *models.ProposalSend) error
	GetByID(ctx context.Context, id string) (*models.ProposalSend, error)
	ListByProposal(ctx context.Context, proposalID string, limit int) ([]models.ProposalSend, error)
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error
}

type shareTokenSigner interface {
	Generate(sendID string, version int) (string, time.Time, error)
	Parse(token string) (sendID string, version int, err error)
}

type deliveryDispatcher interface {
	Dispatch(send *models.ProposalSend) error
}

type sendObserver interface {
	RecordSend(method string)
}

// SendServiceConfig tunes send history queries.
type SendServiceConfig struct {
	HistoryLimit int
}

// SendService owns the append-only send ledger: recording transmissions with
// embedded snapshot copies, exposing history, and advancing recipient status.
type SendService struct {
	proposals proposalStore
	versions  versionStore
	sends     sendStore
	cache     historyCache
	audit     auditLogger
	signer    shareTokenSigner
	delivery  deliveryDispatcher
	metrics   sendObserver
	logger    *zap.Logger
	cfg       SendServiceConfig
}

// NewSendService constructs the service.
func NewSendService(proposals proposalStore, versions versionStore, sends sendStore, cache historyCache, audit auditLogger, signer shareTokenSigner, delivery deliveryDispatcher, metrics sendObserver, logger *zap.Logger, cfg SendServiceConfig) *SendService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	return &SendService{
		proposals: proposals,
		versions:  versions,
		sends:     sends,
		cache:     cache,
		audit:     audit,
		signer:    signer,
		delivery:  delivery,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// SendVersion records a transmission of the named snapshot. The send record
// embeds a full copy of the snapshot content so later edits or deletions can
// never alter what the ledger says was sent.
func (s *SendService) SendVersion(ctx context.Context, proposalID string, version int, req dto.SendProposalRequest, actorID string) (*models.ProposalSend, error) {
	if req.SentTo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recipient address is required")
	}
	method := req.SendMethod
	if method == "" {
		method = models.SendMethodEmail
	}
	if !method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported send method: %s", method))
	}

	proposal, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	explicitVersion := version > 0
	if !explicitVersion {
		version = proposal.CurrentVersion
	}

	snapshot, err := s.versions.GetByVersion(ctx, proposal.ID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if explicitVersion {
				// A caller-named version that is absent is an ordinary miss,
				// typically a stale version number from an old client state.
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("version %d not found", version))
			}
			// The proposal claims a current version its own history does not
			// contain. Sending would record content we cannot vouch for.
			s.logger.Error("send refused: current snapshot missing",
				zap.String("proposal_id", proposal.ID),
				zap.Int("version", version))
			return nil, appErrors.FromError(appErrors.ErrDataIntegrity)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version")
	}

	send := &models.ProposalSend{
		ID:                  uuid.NewString(),
		ProposalID:          proposal.ID,
		Version:             snapshot.Version,
		EmbeddedContent:     snapshot.Content,
		EmbeddedTitle:       snapshot.Title,
		EmbeddedDescription: snapshot.Description,
		EmbeddedWordCount:   snapshot.WordCount,
		SentAt:              time.Now().UTC(),
		SentTo:              req.SentTo,
		RecipientName:       req.RecipientName,
		Subject:             req.Subject,
		Message:             req.Message,
		Status:              models.SendStatusSent,
		SentBy:              actorID,
		SendMethod:          method,
	}

	if method == models.SendMethodLink && s.signer != nil {
		token, _, err := s.signer.Generate(send.ID, send.Version)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate share link")
		}
		send.ShareToken = &token
	}

	if err := s.sends.Record(ctx, send); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("send rolled back: snapshot vanished during record",
				zap.String("proposal_id", proposal.ID),
				zap.Int("version", send.Version))
			return nil, appErrors.FromError(appErrors.ErrDataIntegrity)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record send")
	}

	if s.metrics != nil {
		s.metrics.RecordSend(string(method))
	}
	s.invalidateHistory(ctx, proposal.ID)
	s.emitAudit(ctx, actorID, models.AuditActionProposalSend, proposal.ID, map[string]interface{}{
		"send_id": send.ID,
		"version": send.Version,
		"sent_to": send.SentTo,
		"method":  method,
	})

	if method == models.SendMethodEmail && s.delivery != nil {
		if err := s.delivery.Dispatch(send); err != nil {
			// The ledger row is committed; delivery is best-effort on top.
			s.logger.Warn("failed to enqueue delivery", zap.String("send_id", send.ID), zap.Error(err))
		}
	}
	return send, nil
}

// GetSend returns one send record.
func (s *SendService) GetSend(ctx context.Context, sendID string) (*models.ProposalSend, error) {
	send, err := s.sends.GetByID(ctx, sendID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "send record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load send record")
	}
	return send, nil
}

// GetSendHistory returns the send ledger newest first, each entry annotated
// with whether the embedded copy survives and whether the source snapshot is
// still locked.
func (s *SendService) GetSendHistory(ctx context.Context, proposalID string) ([]models.SendHistoryEntry, error) {
	if _, err := s.proposals.GetByID(ctx, proposalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}

	cacheKey := fmt.Sprintf("proposal:%s:sends", proposalID)
	if s.cache != nil {
		var cached []models.SendHistoryEntry
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	sends, err := s.sends.ListByProposal(ctx, proposalID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sends")
	}

	locked := make(map[int]bool)
	entries := make([]models.SendHistoryEntry, 0, len(sends))
	for _, send := range sends {
		isLocked, seen := locked[send.Version]
		if !seen {
			snapshot, err := s.versions.GetByVersion(ctx, proposalID, send.Version)
			if err == nil {
				isLocked = snapshot.IsLocked
			}
			locked[send.Version] = isLocked
		}
		entries = append(entries, models.SendHistoryEntry{
			ProposalSend: send,
			HasContent:   send.EmbeddedContent != "",
			IsLocked:     isLocked,
		})
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, entries, time.Minute); err != nil {
			s.logger.Warn("failed to cache send history", zap.Error(err))
		}
	}
	return entries, nil
}

// UpdateSendStatus advances a send's recipient-side status. Statuses only
// move forward: SENT, then VIEWED, then one of ACCEPTED, REJECTED or EXPIRED.
// Repeating the current status is an idempotent no-op.
func (s *SendService) UpdateSendStatus(ctx context.Context, sendID string, req dto.UpdateSendStatusRequest, actorID string) (*models.ProposalSend, error) {
	status := req.Status
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported status: %s", status))
	}

	send, err := s.GetSend(ctx, sendID)
	if err != nil {
		return nil, err
	}
	if send.Status == status {
		return send, nil
	}
	if status.Rank() < send.Status.Rank() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot move send from %s back to %s", send.Status, status))
	}
	if send.Status.Rank() >= models.SendStatusRankTerminal {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("send already resolved as %s", send.Status))
	}

	now := time.Now().UTC()
	params := repository.UpdateStatusParams{
		ID:         send.ID,
		FromStatus: send.Status,
		Status:     status,
	}
	switch status {
	case models.SendStatusViewed:
		params.ViewedAt = &now
	case models.SendStatusAccepted, models.SendStatusRejected, models.SendStatusExpired:
		if send.ViewedAt == nil {
			params.ViewedAt = &now
		}
		params.RespondedAt = &now
	}

	if err := s.sends.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "send status changed concurrently, please retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update send status")
	}

	s.invalidateHistory(ctx, send.ProposalID)
	s.emitAudit(ctx, actorID, models.AuditActionSendStatusUpdate, send.ProposalID, map[string]interface{}{
		"send_id": send.ID,
		"from":    send.Status,
		"to":      status,
	})

	send.Status = status
	if params.ViewedAt != nil {
		send.ViewedAt = params.ViewedAt
	}
	if params.RespondedAt != nil {
		send.RespondedAt = params.RespondedAt
	}
	return send, nil
}

// ResolveShareLink validates a share token and returns the referenced send
// with its frozen content. A successful resolve advances the send to VIEWED;
// failures to advance are logged but never block the read.
func (s *SendService) ResolveShareLink(ctx context.Context, token string) (*models.ProposalSend, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "share links are not enabled")
	}
	sendID, version, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired share link")
	}

	send, err := s.GetSend(ctx, sendID)
	if err != nil {
		return nil, err
	}
	if send.Version != version {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired share link")
	}

	if send.Status == models.SendStatusSent {
		if _, err := s.UpdateSendStatus(ctx, send.ID, dto.UpdateSendStatusRequest{Status: models.SendStatusViewed}, send.SentTo); err != nil {
			s.logger.Warn("failed to mark shared send as viewed", zap.String("send_id", send.ID), zap.Error(err))
		} else {
			send.Status = models.SendStatusViewed
		}
	}
	return send, nil
}

func (s *SendService) invalidateHistory(ctx context.Context, proposalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("proposal:%s:*", proposalID)); err != nil {
		s.logger.Warn("failed to invalidate send history cache", zap.Error(err))
	}
}

func (s *SendService) emitAudit(ctx context.Context, actorID, action, proposalID string, values map[string]interface{}) {
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
		UserAgent:  "send-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quillforge/proposal-api/internal/models"
	"github.com/quillforge/proposal-api/internal/repository"
)

// memLedger is an in-memory stand-in for the proposal and version stores. It
// enforces the same optimistic version guard as the real repository so race
// behaviour can be exercised without a database.
type memLedger struct {
	mu        sync.Mutex
	proposals map[string]*models.Proposal
	versions  map[string][]models.ProposalVersion

	// raceCount makes the next N Append calls fail as lost races, bumping
	// the stored version the way a concurrent writer would.
	raceCount int
	appendErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		proposals: make(map[string]*models.Proposal),
		versions:  make(map[string][]models.ProposalVersion),
	}
}

func (m *memLedger) seed(p *models.Proposal, versions ...models.ProposalVersion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.proposals[p.ID] = &cp
	m.versions[p.ID] = append([]models.ProposalVersion(nil), versions...)
}

func (m *memLedger) Create(ctx context.Context, proposal *models.Proposal, initial *models.ProposalVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if proposal.ID == "" {
		proposal.ID = fmt.Sprintf("p%d", len(m.proposals)+1)
	}
	proposal.CurrentVersion = 1
	initial.ProposalID = proposal.ID
	initial.Version = 1
	cp := *proposal
	m.proposals[proposal.ID] = &cp
	m.versions[proposal.ID] = []models.ProposalVersion{*initial}
	return nil
}

func (m *memLedger) GetByID(ctx context.Context, id string) (*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *memLedger) MarkUnsavedChanges(ctx context.Context, id string, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.proposals[id]; ok {
		p.HasUnsavedChanges = dirty
	}
	return nil
}

func (m *memLedger) Append(ctx context.Context, params repository.AppendVersionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	p, ok := m.proposals[params.Snapshot.ProposalID]
	if !ok {
		return sql.ErrNoRows
	}
	if m.raceCount > 0 {
		m.raceCount--
		p.CurrentVersion++
		return repository.ErrVersionRace
	}
	if p.CurrentVersion != params.PrevVersion {
		return repository.ErrVersionRace
	}
	params.Snapshot.Version = params.PrevVersion + 1
	if params.Snapshot.CreatedAt.IsZero() {
		params.Snapshot.CreatedAt = time.Now().UTC()
	}
	p.CurrentVersion = params.Snapshot.Version
	p.CurrentContent = params.Snapshot.Content
	p.CurrentContentHash = params.ContentHash
	p.Title = params.Snapshot.Title
	p.Description = params.Snapshot.Description
	p.HasUnsavedChanges = false
	m.versions[p.ID] = append(m.versions[p.ID], *params.Snapshot)
	return nil
}

func (m *memLedger) GetByVersion(ctx context.Context, proposalID string, version int) (*models.ProposalVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions[proposalID] {
		if m.versions[proposalID][i].Version == version {
			cp := m.versions[proposalID][i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memLedger) ListByProposal(ctx context.Context, proposalID string) ([]models.ProposalVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshots := append([]models.ProposalVersion(nil), m.versions[proposalID]...)
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}
	return snapshots, nil
}

func (m *memLedger) lockVersion(proposalID string, version int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.versions[proposalID] {
		if m.versions[proposalID][i].Version == version {
			m.versions[proposalID][i].IsLocked = true
			m.versions[proposalID][i].IsSent = true
			m.versions[proposalID][i].SentCount++
		}
	}
}

// memSendStore implements sendStore with the real repository's guard
// semantics: recording locks the snapshot, status updates are guarded by the
// previously read status.
type memSendStore struct {
	mu        sync.Mutex
	ledger    *memLedger
	sends     map[string]*models.ProposalSend
	order     []string
	recordErr error
}

func newMemSendStore(ledger *memLedger) *memSendStore {
	return &memSendStore{ledger: ledger, sends: make(map[string]*models.ProposalSend)}
}

func (m *memSendStore) Record(ctx context.Context, send *models.ProposalSend) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if send.ID == "" {
		send.ID = fmt.Sprintf("s%d", len(m.sends)+1)
	}
	if send.SentAt.IsZero() {
		send.SentAt = time.Now().UTC()
	}
	if send.Status == "" {
		send.Status = models.SendStatusSent
	}
	found := false
	for i := range m.ledger.versions[send.ProposalID] {
		if m.ledger.versions[send.ProposalID][i].Version == send.Version {
			found = true
		}
	}
	if !found {
		return sql.ErrNoRows
	}
	m.ledger.lockVersion(send.ProposalID, send.Version)
	cp := *send
	m.sends[send.ID] = &cp
	m.order = append(m.order, send.ID)
	return nil
}

func (m *memSendStore) GetByID(ctx context.Context, id string) (*models.ProposalSend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sends[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSendStore) ListByProposal(ctx context.Context, proposalID string, limit int) ([]models.ProposalSend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProposalSend
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.sends[m.order[i]]
		if s.ProposalID == proposalID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSendStore) UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sends[params.ID]
	if !ok || s.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	s.Status = params.Status
	if params.ViewedAt != nil {
		s.ViewedAt = params.ViewedAt
	}
	if params.RespondedAt != nil {
		s.RespondedAt = params.RespondedAt
	}
	return nil
}

// stubCache counts lookups; hit serves the stored payload via the set hook.
type stubCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
	gets    int
	sets    int
	deletes []string
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]interface{})}
}

func (c *stubCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return fmt.Errorf("cache miss")
}

func (c *stubCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value
	return nil
}

func (c *stubCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, pattern)
	for key := range c.entries {
		if strings.HasPrefix(key, strings.TrimSuffix(pattern, "*")) {
			delete(c.entries, key)
		}
	}
	return nil
}

type stubAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (a *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *log)
	return nil
}

type stubMetrics struct {
	mu         sync.Mutex
	cacheOps   int
	versions   int
	races      int
	sendsTotal map[string]int
}

func (s *stubMetrics) RecordCacheOperation(hit bool, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheOps++
}

func (s *stubMetrics) RecordVersionCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions++
}

func (s *stubMetrics) RecordVersionRace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.races++
}

func (s *stubMetrics) RecordSend(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendsTotal == nil {
		s.sendsTotal = make(map[string]int)
	}
	s.sendsTotal[method]++
}

type stubDispatcher struct {
	mu    sync.Mutex
	sends []models.ProposalSend
	err   error
}

func (d *stubDispatcher) Dispatch(send *models.ProposalSend) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sends = append(d.sends, *send)
	return nil
}

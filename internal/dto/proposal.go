package dto

import "github.com/quillforge/proposal-api/internal/models"

// CreateProposalRequest captures POST /proposals payload. The proposal is
// created with version 1 even when content is empty.
type CreateProposalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// SaveVersionRequest captures POST /proposals/{id}/versions payload.
type SaveVersionRequest struct {
	Content     string            `json:"content"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	ChangeType  models.ChangeType `json:"changeType"`
}

// SaveVersionResponse reports the version number after a save. Created is
// false when the save was an idempotent no-op.
type SaveVersionResponse struct {
	ProposalID string `json:"proposalId"`
	Version    int    `json:"version"`
	Created    bool   `json:"created"`
}

// VersionContentResponse exposes a single snapshot to the presentation surface.
type VersionContentResponse struct {
	Version        int               `json:"version"`
	Content        string            `json:"content"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	ChangeSummary  string            `json:"changeSummary"`
	ChangeType     models.ChangeType `json:"changeType"`
	CreatedBy      string            `json:"createdBy"`
	CreatedAt      string            `json:"createdAt"`
	WordCount      int               `json:"wordCount"`
	CharacterCount int               `json:"characterCount"`
	IsSent         bool              `json:"isSent"`
	SentCount      int               `json:"sentCount"`
	IsLocked       bool              `json:"isLocked"`
}

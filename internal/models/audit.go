package models

import "time"

// Audited actions. Auth events come from the auth service directly; the
// ledger actions are stamped by route middleware.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionTokenRefresh     = "TOKEN_REFRESH"
	AuditActionProposalCreate   = "PROPOSAL_CREATE"
	AuditActionVersionCreate    = "VERSION_CREATE"
	AuditActionProposalSend     = "PROPOSAL_SEND"
	AuditActionSendStatusUpdate = "SEND_STATUS_UPDATE"
)

// AuditLog is one append-only audit trail row. Old and new values hold JSON
// fragments describing the change.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

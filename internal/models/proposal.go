package models

import "time"

// ChangeType classifies why a version snapshot was created.
type ChangeType string

const (
	ChangeTypeCreated     ChangeType = "created"
	ChangeTypeContentEdit ChangeType = "content_edit"
	ChangeTypeMinorEdit   ChangeType = "minor_edit"
	ChangeTypeMajorEdit   ChangeType = "major_edit"
	ChangeTypePreSend     ChangeType = "pre_send"
)

// Valid reports whether the change type is one of the known values.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeCreated, ChangeTypeContentEdit, ChangeTypeMinorEdit, ChangeTypeMajorEdit, ChangeTypePreSend:
		return true
	}
	return false
}

// SendStatus tracks recipient-side progress of a transmission.
type SendStatus string

const (
	SendStatusSent     SendStatus = "SENT"
	SendStatusViewed   SendStatus = "VIEWED"
	SendStatusAccepted SendStatus = "ACCEPTED"
	SendStatusRejected SendStatus = "REJECTED"
	SendStatusExpired  SendStatus = "EXPIRED"
)

// SendStatusRankTerminal is the rank shared by ACCEPTED, REJECTED and
// EXPIRED. A send at this rank can never transition again.
const SendStatusRankTerminal = 3

// Rank orders statuses so transitions can only move forward. Terminal
// outcomes share the highest rank; none of them may be left once reached.
func (s SendStatus) Rank() int {
	switch s {
	case SendStatusSent:
		return 1
	case SendStatusViewed:
		return 2
	case SendStatusAccepted, SendStatusRejected, SendStatusExpired:
		return SendStatusRankTerminal
	}
	return 0
}

// Valid reports whether the status is one of the known values. Every known
// status has a positive rank.
func (s SendStatus) Valid() bool {
	return s.Rank() > 0
}

// SendMethod identifies the channel a proposal was transmitted over.
type SendMethod string

const (
	SendMethodEmail    SendMethod = "EMAIL"
	SendMethodLink     SendMethod = "LINK"
	SendMethodDownload SendMethod = "DOWNLOAD"
)

// Valid reports whether the send method is one of the known values.
func (m SendMethod) Valid() bool {
	switch m {
	case SendMethodEmail, SendMethodLink, SendMethodDownload:
		return true
	}
	return false
}

// Proposal is the mutable working document being authored. Its current_version
// always equals the highest version number in the proposal's version ledger.
type Proposal struct {
	ID                 string    `db:"id" json:"id"`
	OwnerID            string    `db:"owner_id" json:"owner_id"`
	Title              string    `db:"title" json:"title"`
	Description        string    `db:"description" json:"description"`
	CurrentVersion     int       `db:"current_version" json:"current_version"`
	CurrentContent     string    `db:"current_content" json:"current_content"`
	CurrentContentHash string    `db:"current_content_hash" json:"-"`
	HasUnsavedChanges  bool      `db:"has_unsaved_changes" json:"has_unsaved_changes"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ProposalVersion is an append-only snapshot of a proposal at a point in time.
// Once locked, only SentCount and IsSent may change.
type ProposalVersion struct {
	ID             string     `db:"id" json:"id"`
	ProposalID     string     `db:"proposal_id" json:"proposal_id"`
	Version        int        `db:"version" json:"version"`
	Content        string     `db:"content" json:"content"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	ChangeSummary  string     `db:"change_summary" json:"change_summary"`
	ChangeType     ChangeType `db:"change_type" json:"change_type"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	WordCount      int        `db:"word_count" json:"word_count"`
	CharacterCount int        `db:"character_count" json:"character_count"`
	IsSent         bool       `db:"is_sent" json:"is_sent"`
	SentCount      int        `db:"sent_count" json:"sent_count"`
	IsLocked       bool       `db:"is_locked" json:"is_locked"`
}

// ProposalSend is an append-only transmission record. The embedded_* columns
// hold a copy of the snapshot taken at send time, deliberately duplicated
// rather than referenced so the transmitted content survives any later
// mutation of the version row.
type ProposalSend struct {
	ID                  string     `db:"id" json:"id"`
	ProposalID          string     `db:"proposal_id" json:"proposal_id"`
	Version             int        `db:"version" json:"version"`
	EmbeddedContent     string     `db:"embedded_content" json:"embedded_content"`
	EmbeddedTitle       string     `db:"embedded_title" json:"embedded_title"`
	EmbeddedDescription string     `db:"embedded_description" json:"embedded_description"`
	EmbeddedWordCount   int        `db:"embedded_word_count" json:"embedded_word_count"`
	SentAt              time.Time  `db:"sent_at" json:"sent_at"`
	SentTo              string     `db:"sent_to" json:"sent_to"`
	RecipientName       string     `db:"recipient_name" json:"recipient_name"`
	Subject             string     `db:"subject" json:"subject"`
	Message             string     `db:"message" json:"message"`
	Status              SendStatus `db:"status" json:"status"`
	SentBy              string     `db:"sent_by" json:"sent_by"`
	SendMethod          SendMethod `db:"send_method" json:"send_method"`
	ShareToken          *string    `db:"share_token" json:"share_token,omitempty"`
	ViewedAt            *time.Time `db:"viewed_at" json:"viewed_at,omitempty"`
	RespondedAt         *time.Time `db:"responded_at" json:"responded_at,omitempty"`
}

// SendHistoryEntry is a send record annotated for the presentation surface.
type SendHistoryEntry struct {
	ProposalSend
	HasContent bool `json:"has_content"`
	IsLocked   bool `json:"is_locked"`
}

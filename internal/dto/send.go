package dto

import "github.com/quillforge/proposal-api/internal/models"

// SendProposalRequest captures POST /proposals/{id}/sends payload. Version 0
// means "send the current version".
type SendProposalRequest struct {
	Version       int               `json:"version"`
	SentTo        string            `json:"sentTo"`
	RecipientName string            `json:"recipientName"`
	Subject       string            `json:"subject"`
	Message       string            `json:"message"`
	SendMethod    models.SendMethod `json:"sendMethod"`
}

// UpdateSendStatusRequest is reported by the delivery surface as recipient
// activity arrives.
type UpdateSendStatusRequest struct {
	Status models.SendStatus `json:"status"`
}

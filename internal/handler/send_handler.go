package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillforge/proposal-api/internal/dto"
	"github.com/quillforge/proposal-api/internal/service"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
	"github.com/quillforge/proposal-api/pkg/response"
)

// SendHandler wires the send ledger endpoints.
type SendHandler struct {
	sends   *service.SendService
	exports *service.ExportService
}

// NewSendHandler creates a new handler.
func NewSendHandler(sends *service.SendService, exports *service.ExportService) *SendHandler {
	return &SendHandler{sends: sends, exports: exports}
}

// Send godoc
// @Summary Send proposal
// @Description Record a transmission of a version snapshot; locks the snapshot
// @Tags Sends
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.SendProposalRequest true "Send payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id}/sends [post]
func (h *SendHandler) Send(c *gin.Context) {
	var req dto.SendProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid send payload"))
		return
	}

	send, err := h.sends.SendVersion(c.Request.Context(), c.Param("id"), req.Version, req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, send)
}

// History godoc
// @Summary List send history
// @Description Send records newest first with frozen snapshot annotations
// @Tags Sends
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id}/sends [get]
func (h *SendHandler) History(c *gin.Context) {
	entries, err := h.sends.GetSendHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// ExportHistoryCSV godoc
// @Summary Export send history
// @Description Render the send ledger as a CSV download
// @Tags Sends
// @Produce text/csv
// @Param id path string true "Proposal ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id}/sends/export [get]
func (h *SendHandler) ExportHistoryCSV(c *gin.Context) {
	payload, filename, err := h.exports.ExportSendHistoryCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", payload)
}

// Get godoc
// @Summary Get send record
// @Description Fetch one send record with its embedded snapshot copy
// @Tags Sends
// @Produce json
// @Param id path string true "Send ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sends/{id} [get]
func (h *SendHandler) Get(c *gin.Context) {
	send, err := h.sends.GetSend(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, send)
}

// UpdateStatus godoc
// @Summary Update send status
// @Description Advance recipient-side status; statuses only move forward
// @Tags Sends
// @Accept json
// @Produce json
// @Param id path string true "Send ID"
// @Param payload body dto.UpdateSendStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sends/{id}/status [patch]
func (h *SendHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateSendStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	send, err := h.sends.UpdateSendStatus(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, send)
}

// ResolveShareLink godoc
// @Summary Resolve share link
// @Description Public endpoint resolving a signed share token to the frozen snapshot
// @Tags Sends
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /shared/{token} [get]
func (h *SendHandler) ResolveShareLink(c *gin.Context) {
	send, err := h.sends.ResolveShareLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"title":      send.EmbeddedTitle,
		"content":    send.EmbeddedContent,
		"version":    send.Version,
		"sent_at":    send.SentAt,
		"word_count": send.EmbeddedWordCount,
	})
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quillforge/proposal-api/internal/dto"
	"github.com/quillforge/proposal-api/internal/service"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
	"github.com/quillforge/proposal-api/pkg/response"
)

// ProposalHandler wires the proposal and version ledger endpoints.
type ProposalHandler struct {
	versions *service.VersionService
	exports  *service.ExportService
}

// NewProposalHandler creates a new handler.
func NewProposalHandler(versions *service.VersionService, exports *service.ExportService) *ProposalHandler {
	return &ProposalHandler{versions: versions, exports: exports}
}

// Create godoc
// @Summary Create proposal
// @Description Create a proposal with its initial version snapshot
// @Tags Proposals
// @Accept json
// @Produce json
// @Param payload body dto.CreateProposalRequest true "Proposal payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /proposals [post]
func (h *ProposalHandler) Create(c *gin.Context) {
	var req dto.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid proposal payload"))
		return
	}

	proposal, err := h.versions.CreateProposal(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, proposal)
}

// Get godoc
// @Summary Get proposal
// @Description Fetch the working proposal document
// @Tags Proposals
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	proposal, err := h.versions.GetProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, proposal)
}

// SaveVersion godoc
// @Summary Save version
// @Description Snapshot proposal content as the next version; identical content is a no-op
// @Tags Versions
// @Accept json
// @Produce json
// @Param id path string true "Proposal ID"
// @Param payload body dto.SaveVersionRequest true "Version payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals/{id}/versions [post]
func (h *ProposalHandler) SaveVersion(c *gin.Context) {
	var req dto.SaveVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid version payload"))
		return
	}

	res, err := h.versions.CreateVersion(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, res)
}

// MarkDirty godoc
// @Summary Flag unsaved changes
// @Description Record that the working copy has edits not yet versioned
// @Tags Proposals
// @Param id path string true "Proposal ID"
// @Success 204
// @Failure 500 {object} response.Envelope
// @Router /proposals/{id}/dirty [patch]
func (h *ProposalHandler) MarkDirty(c *gin.Context) {
	if err := h.versions.MarkDirty(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListVersions godoc
// @Summary List version history
// @Description Version snapshots newest first
// @Tags Versions
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id}/versions [get]
func (h *ProposalHandler) ListVersions(c *gin.Context) {
	versions, err := h.versions.GetVersionHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, versions, map[string]interface{}{"count": len(versions)})
}

// GetVersion godoc
// @Summary Get version content
// @Description Fetch one snapshot by version number
// @Tags Versions
// @Produce json
// @Param id path string true "Proposal ID"
// @Param version path int true "Version number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id}/versions/{version} [get]
func (h *ProposalHandler) GetVersion(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version must be a positive integer"))
		return
	}

	snapshot, err := h.versions.GetVersionContent(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.VersionContentResponse{
		Version:        snapshot.Version,
		Content:        snapshot.Content,
		Title:          snapshot.Title,
		Description:    snapshot.Description,
		ChangeSummary:  snapshot.ChangeSummary,
		ChangeType:     snapshot.ChangeType,
		CreatedBy:      snapshot.CreatedBy,
		CreatedAt:      snapshot.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		WordCount:      snapshot.WordCount,
		CharacterCount: snapshot.CharacterCount,
		IsSent:         snapshot.IsSent,
		SentCount:      snapshot.SentCount,
		IsLocked:       snapshot.IsLocked,
	})
}

// ExportVersionPDF godoc
// @Summary Export version PDF
// @Description Render one snapshot as a PDF download
// @Tags Versions
// @Produce application/pdf
// @Param id path string true "Proposal ID"
// @Param version path int true "Version number"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id}/versions/{version}/export [get]
func (h *ProposalHandler) ExportVersionPDF(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version must be a positive integer"))
		return
	}

	payload, filename, err := h.exports.ExportVersionPDF(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}

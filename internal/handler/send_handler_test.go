package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/proposal-api/internal/dto"
	"github.com/quillforge/proposal-api/internal/models"
)

func TestSendHandlerSend(t *testing.T) {
	ts := newTestStack()
	ts.seed("body to transmit")

	payload, _ := json.Marshal(dto.SendProposalRequest{SentTo: "client@example.com", Subject: "Proposal"})
	c, w := newTestContext(t, http.MethodPost, "/proposals/p1/sends", payload, gin.Params{{Key: "id", Value: "p1"}})

	ts.send.Send(c)
	require.Equal(t, http.StatusCreated, w.Code)

	envelope := decodeEnvelope(t, w)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "body to transmit", data["embedded_content"])
	assert.Equal(t, string(models.SendStatusSent), data["status"])
}

func TestSendHandlerSendInvalidBody(t *testing.T) {
	ts := newTestStack()
	c, w := newTestContext(t, http.MethodPost, "/proposals/p1/sends", []byte(`{"sentTo":`), gin.Params{{Key: "id", Value: "p1"}})

	ts.send.Send(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendHandlerSendUnknownProposal(t *testing.T) {
	ts := newTestStack()
	payload, _ := json.Marshal(dto.SendProposalRequest{SentTo: "client@example.com"})
	c, w := newTestContext(t, http.MethodPost, "/proposals/missing/sends", payload, gin.Params{{Key: "id", Value: "missing"}})

	ts.send.Send(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendHandlerHistoryMeta(t *testing.T) {
	ts := newTestStack()
	ts.seed("body")

	payload, _ := json.Marshal(dto.SendProposalRequest{SentTo: "client@example.com"})
	c, _ := newTestContext(t, http.MethodPost, "/proposals/p1/sends", payload, gin.Params{{Key: "id", Value: "p1"}})
	ts.send.Send(c)

	c, w := newTestContext(t, http.MethodGet, "/proposals/p1/sends", nil, gin.Params{{Key: "id", Value: "p1"}})
	ts.send.History(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	assert.Equal(t, float64(1), envelope.Meta["count"])
}

func TestSendHandlerUpdateStatusBackward(t *testing.T) {
	ts := newTestStack()
	ts.seed("body")

	payload, _ := json.Marshal(dto.SendProposalRequest{SentTo: "client@example.com"})
	c, w := newTestContext(t, http.MethodPost, "/proposals/p1/sends", payload, gin.Params{{Key: "id", Value: "p1"}})
	ts.send.Send(c)
	require.Equal(t, http.StatusCreated, w.Code)

	envelope := decodeEnvelope(t, w)
	sendID := envelope.Data.(map[string]interface{})["id"].(string)

	statusPayload, _ := json.Marshal(dto.UpdateSendStatusRequest{Status: models.SendStatusViewed})
	c, w = newTestContext(t, http.MethodPatch, "/sends/"+sendID+"/status", statusPayload, gin.Params{{Key: "id", Value: sendID}})
	ts.send.UpdateStatus(c)
	require.Equal(t, http.StatusOK, w.Code)

	backPayload, _ := json.Marshal(dto.UpdateSendStatusRequest{Status: models.SendStatusSent})
	c, w = newTestContext(t, http.MethodPatch, "/sends/"+sendID+"/status", backPayload, gin.Params{{Key: "id", Value: sendID}})
	ts.send.UpdateStatus(c)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSendHandlerResolveShareLink(t *testing.T) {
	ts := newTestStack()
	ts.seed("shared body")

	payload, _ := json.Marshal(dto.SendProposalRequest{SentTo: "client@example.com", SendMethod: models.SendMethodLink})
	c, w := newTestContext(t, http.MethodPost, "/proposals/p1/sends", payload, gin.Params{{Key: "id", Value: "p1"}})
	ts.send.Send(c)
	require.Equal(t, http.StatusCreated, w.Code)

	envelope := decodeEnvelope(t, w)
	token := envelope.Data.(map[string]interface{})["share_token"].(string)

	c, w = newTestContext(t, http.MethodGet, "/shared/"+token, nil, gin.Params{{Key: "token", Value: token}})
	ts.send.ResolveShareLink(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope = decodeEnvelope(t, w)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "shared body", data["content"])
	assert.Equal(t, float64(1), data["version"])
}

func TestSendHandlerResolveShareLinkInvalid(t *testing.T) {
	ts := newTestStack()
	c, w := newTestContext(t, http.MethodGet, "/shared/bogus", nil, gin.Params{{Key: "token", Value: "bogus"}})

	ts.send.ResolveShareLink(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

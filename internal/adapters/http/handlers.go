package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/dialin/internal/app/orch"
	"github.com/dkeye/dialin/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handlers struct {
	Orch       *orch.Orchestrator
	PingPeriod time.Duration
	ReadLimit  int64
}

type StartBotResponse struct {
	RoomURL domain.RoomURL `json:"room_url"`
	SIPURI  string         `json:"sipUri"`
}

type VariableResponse struct {
	Name  string `json:"variable_name"`
	Value string `json:"value"`
}

type TranscriptResponse struct {
	RoomURL    domain.RoomURL `json:"room_url"`
	Transcript string         `json:"transcript"`
}

// StartBot is the dial-in webhook.
func (h *Handlers) StartBot(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request format"})
		return
	}
	// Webhook configuration probes send a test payload.
	if _, ok := body["test"]; ok {
		c.JSON(http.StatusOK, gin.H{"test": true})
		return
	}

	callID, _ := body["callId"].(string)
	callDomain, _ := body["callDomain"].(string)
	call, err := domain.NewCall(callID, callDomain)
	if err != nil {
		writeError(c, err)
		return
	}

	log.Info().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).
		Str("call_id", call.ID).Str("call_domain", call.Domain).Msg("received dial-in")

	room, err := h.Orch.StartSession(c.Request.Context(), call)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StartBotResponse{RoomURL: room.URL, SIPURI: room.SIPEndpoint})
}

func (h *Handlers) BotVariable(c *gin.Context) {
	room, name, ok := splitVariablePath(c.Param("path"))
	if !ok {
		writeError(c, domain.ErrRoomNotFound)
		return
	}
	value, err := h.Orch.GetVariable(room, name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, VariableResponse{Name: name, Value: value})
}

func (h *Handlers) Transcript(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		writeError(c, domain.ErrRoomNotFound)
		return
	}
	transcript, err := h.Orch.GetTranscript(room)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TranscriptResponse{RoomURL: room, Transcript: transcript})
}

func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Orch.ListSessions()})
}

func (h *Handlers) StopBot(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		writeError(c, domain.ErrRoomNotFound)
		return
	}
	if err := h.Orch.StopSession(room); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// roomParam reads the catch-all room_url parameter.
func roomParam(c *gin.Context) (domain.RoomURL, bool) {
	room := strings.TrimPrefix(c.Param("room_url"), "/")
	return domain.RoomURL(room), room != ""
}

// splitVariablePath splits "/<room url>/<name>" on its last slash.
func splitVariablePath(p string) (domain.RoomURL, string, bool) {
	p = strings.TrimPrefix(p, "/")
	i := strings.LastIndex(p, "/")
	if i <= 0 || i == len(p)-1 {
		return "", "", false
	}
	return domain.RoomURL(p[:i]), p[i+1:], true
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error()})
}

package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dkeye/dialin/internal/core"
	"github.com/dkeye/dialin/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// BotOutput streams the room's queue as text/plain, one line per event,
// until the bot exits or the client goes away.
func (h *Handlers) BotOutput(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		writeError(c, domain.ErrRoomNotFound)
		return
	}
	q, err := h.Orch.StreamOutput(room)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		line, err := q.Pop(ctx)
		if err != nil {
			return false
		}
		_, err = io.WriteString(w, line+"\n")
		return err == nil
	})
	log.Debug().Str("module", "adapters.http").Str("room", string(room)).Msg("output stream ended")
}

// BotOutputWS pushes the same stream as BotOutput over a WebSocket.
func (h *Handlers) BotOutputWS(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		writeError(c, domain.ErrRoomNotFound)
		return
	}
	q, err := h.Orch.StreamOutput(room)
	if err != nil {
		writeError(c, err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(room)).Msg("ws output stream opened")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.readPump(ctx, cancel, ws)
	if h.PingPeriod > 0 {
		go h.pingLoop(ctx, ws)
	}
	h.writePump(ctx, ws, q)
}

func (h *Handlers) writePump(ctx context.Context, ws *websocket.Conn, q *core.OutputQueue) {
	defer ws.Close()
	for {
		line, err := q.Pop(ctx)
		if errors.Is(err, core.ErrQueueClosed) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bot exited")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
		if err != nil {
			log.Info().Str("module", "adapters.http").Msg("writePump ctx done")
			return
		}
		if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("writePump set deadline")
			return
		}
		if err := ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("writePump write error")
			return
		}
	}
}

// readPump only watches for the client closing the socket.
func (h *Handlers) readPump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn) {
	defer cancel()
	if h.ReadLimit > 0 {
		ws.SetReadLimit(h.ReadLimit)
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handlers) pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(h.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SignalView/internal/domain/models"
	"SignalView/internal/service/metrics"
	"SignalView/internal/usecase"
	xhttp "SignalView/pkg/http"
	applogger "SignalView/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamMessage is one frame pushed to WebSocket clients.
type StreamMessage struct {
	Type  string          `json:"type"`
	Data  *models.KPIs    `json:"data,omitempty"`
	Error *xhttp.AppError `json:"error,omitempty"`
	At    time.Time       `json:"at"`
}

// StreamHandler pushes KPI summaries over a WebSocket.
type StreamHandler struct {
	l        *applogger.Logger
	uc       *usecase.SnapshotUseCase
	interval time.Duration
	upgrader websocket.Upgrader
}

func NewStreamHandler(l *applogger.Logger, uc *usecase.SnapshotUseCase, interval time.Duration) *StreamHandler {
	metrics.Register()
	if l == nil {
		l = applogger.Nop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StreamHandler{
		l:        l,
		uc:       uc,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/snapshot", h.Stream)
}

// Stream upgrades the connection and sends KPIs immediately, then every
// interval, until the client goes away.
func (h *StreamHandler) Stream(c echo.Context) error {
	req := &models.KPIRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := params(req.RowCap, req.Lookback)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	defer conn.Close()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// the read loop only drains control frames and notices disconnects
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := time.NewTicker(h.interval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	remote := c.RealIP()
	h.l.Debug("stream client connected", applogger.String("remote", remote))
	defer h.l.Debug("stream client disconnected", applogger.String("remote", remote))

	if err := h.send(ctx, conn, p); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case <-push.C:
			if err := h.send(ctx, conn, p); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

func (h *StreamHandler) send(ctx context.Context, conn *websocket.Conn, p models.SnapshotParams) error {
	msg := StreamMessage{Type: "kpis", At: time.Now().UTC()}
	k, err := h.uc.KPIs(ctx, p)
	if err != nil {
		metrics.APIErrors.WithLabelValues("stream", errorKind(err)).Inc()
		msg.Type = "error"
		msg.Error = toAppError(err)
	} else {
		msg.Data = k
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.l.Debug("stream write failed", applogger.Error(err))
		return err
	}
	return nil
}

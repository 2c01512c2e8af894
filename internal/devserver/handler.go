package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ariavoice/streamkit/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Config struct {
	// APIKey, when non-empty, is required in the X-API-Key header. A
	// duplex session with a bad key is closed with a policy violation;
	// the fallback route answers 401.
	APIKey string

	SampleRate      int
	Channels        int
	SegmentBytes    int
	SegmentDelay    time.Duration
	HeartbeatPeriod time.Duration
}

// Handler serves both faces of the synthesis protocol: the duplex
// session endpoint and the one-shot streaming fallback.
type Handler struct {
	cfg Config
	log *slog.Logger
}

func NewHandler(cfg Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.SegmentBytes <= 0 {
		cfg.SegmentBytes = 4096
	}
	if cfg.SegmentDelay <= 0 {
		cfg.SegmentDelay = 20 * time.Millisecond
	}
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = 15 * time.Second
	}
	return &Handler{cfg: cfg, log: log}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/v1/tts/session", h.handleSession)
	e.POST("/v1/tts/speak", h.handleSpeak)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// sessionConn serializes writes to one duplex connection; binary
// segments, control frames and heartbeats all share the socket.
type sessionConn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (c *sessionConn) writeJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *sessionConn) writeBinary(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, p)
}

func (c *sessionConn) writeClose(code int, reason string) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func (h *Handler) handleSession(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return err
	}
	defer ws.Close()

	conn := &sessionConn{ws: ws}

	if h.cfg.APIKey != "" && c.Request().Header.Get("X-API-Key") != h.cfg.APIKey {
		h.log.Warn("session rejected, bad api key")
		conn.writeClose(websocket.ClosePolicyViolation, "invalid api key")
		return nil
	}

	if err := conn.writeJSON(protocol.SignalCommand{Type: protocol.TypeReady}); err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go h.heartbeatLoop(ctx, conn)

	var synthMu sync.Mutex
	var synthCancel context.CancelFunc
	stopSynth := func() {
		synthMu.Lock()
		if synthCancel != nil {
			synthCancel()
			synthCancel = nil
		}
		synthMu.Unlock()
	}
	defer stopSynth()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("session read ended", "error", err)
			}
			return nil
		}

		ev, err := protocol.ParseEvent(data)
		if err != nil {
			h.log.Warn("unparseable command dropped", "error", err)
			continue
		}

		switch ev.Type {
		case protocol.TypeStart:
			var cmd protocol.StartCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				h.log.Warn("bad start command", "error", err)
				continue
			}
			h.log.Info("session started", "voice", cmd.VoiceID, "format", cmd.Format)
			_ = conn.writeJSON(protocol.SignalCommand{Type: protocol.TypeStart})
		case protocol.TypeText, protocol.TypeSSML:
			text := commandText(data, ev.Type)
			stopSynth()
			synthCtx, cancelSynth := context.WithCancel(ctx)
			synthMu.Lock()
			synthCancel = cancelSynth
			synthMu.Unlock()
			go h.streamSynthesis(synthCtx, conn, text)
		case protocol.TypeCancel:
			stopSynth()
		case protocol.TypeEnd:
			stopSynth()
			conn.writeClose(websocket.CloseNormalClosure, "")
			return nil
		default:
			h.log.Debug("ignoring command", "type", ev.Type)
		}
	}
}

func commandText(data []byte, frameType string) string {
	if frameType == protocol.TypeSSML {
		var cmd protocol.SSMLCommand
		_ = json.Unmarshal(data, &cmd)
		return cmd.SSML
	}
	var cmd protocol.TextCommand
	_ = json.Unmarshal(data, &cmd)
	return cmd.Text
}

func (h *Handler) streamSynthesis(ctx context.Context, conn *sessionConn, text string) {
	segments := Segments(text, h.cfg.SampleRate, h.cfg.Channels, h.cfg.SegmentBytes)
	msPerSegment := float64(h.cfg.SegmentBytes) / float64(h.cfg.SampleRate*h.cfg.Channels*2) * 1000

	for i, segment := range segments {
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.cfg.SegmentDelay):
		}

		if err := conn.writeBinary(segment); err != nil {
			return
		}
		_ = conn.writeJSON(protocol.VisemeFrame{
			Type: protocol.TypeViseme,
			Viseme: protocol.Viseme{
				TimeMs: float64(i) * msPerSegment,
				Morph:  "aa",
				Weight: 0.7,
			},
		})
	}

	if ctx.Err() == nil {
		_ = conn.writeJSON(protocol.SignalCommand{Type: protocol.TypeEnd})
	}
}

func (h *Handler) heartbeatLoop(ctx context.Context, conn *sessionConn) {
	ticker := time.NewTicker(h.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.writeJSON(protocol.SignalCommand{Type: protocol.TypePing}); err != nil {
				return
			}
		}
	}
}

type speakRequest struct {
	Text    string `json:"text"`
	Model   string `json:"model,omitempty"`
	Format  string `json:"format,omitempty"`
	VoiceID string `json:"voiceId,omitempty"`
}

func (h *Handler) handleSpeak(c echo.Context) error {
	if h.cfg.APIKey != "" && c.Request().Header.Get("X-API-Key") != h.cfg.APIKey {
		return c.JSON(http.StatusUnauthorized, protocol.ErrorFrame{
			Code:    "invalid_api_key",
			Status:  http.StatusUnauthorized,
			Message: "invalid api key",
		})
	}

	var req speakRequest
	if err := c.Bind(&req); err != nil || req.Text == "" {
		return c.JSON(http.StatusBadRequest, protocol.ErrorFrame{
			Code:    "invalid_request",
			Status:  http.StatusBadRequest,
			Message: "text is required",
		})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/octet-stream")
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	for _, segment := range Segments(req.Text, h.cfg.SampleRate, h.cfg.Channels, h.cfg.SegmentBytes) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(h.cfg.SegmentDelay):
		}
		if _, err := resp.Write(segment); err != nil {
			return nil
		}
		resp.Flush()
	}
	return nil
}

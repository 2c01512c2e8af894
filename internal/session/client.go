package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ariavoice/streamkit/internal/protocol"
	"github.com/ariavoice/streamkit/internal/shared"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"
)

// Connection phases. The phase is an explicit state machine so the
// close-before-ready, grace-window and intentional-close distinctions
// stay checkable instead of hiding in boolean flags.
const (
	PhaseDisconnected  = "disconnected"
	PhaseConnecting    = "connecting"
	PhaseAwaitingReady = "awaiting_ready"
	PhaseReady         = "ready"
	PhaseClosed        = "closed"
)

const (
	evDial  = "dial"
	evOpen  = "open"
	evReady = "ready"
	evClose = "close"
)

const (
	defaultReadyTimeout = 5 * time.Second
	defaultDialTimeout  = 10 * time.Second
	defaultGraceWindow  = 50 * time.Millisecond
)

type Config struct {
	URL    string
	Header http.Header

	// ReadyTimeout bounds the window between transport-open and the
	// tts.ready frame.
	ReadyTimeout time.Duration
	DialTimeout  time.Duration

	// GraceWindow suppresses close-before-ready noise right after
	// transport-open, so fast mount/unmount cycles do not raise alarms.
	GraceWindow time.Duration

	Logger *slog.Logger
}

// Client owns one logical duplex session to a streaming-synthesis
// endpoint. Commands are fire-and-forget over the wire; every detected
// anomaly is classified and delivered through the error subscription,
// never thrown out of a command method.
type Client struct {
	cfg Config
	id  string
	log *slog.Logger

	mu           sync.Mutex
	phase        *fsm.FSM
	conn         *websocket.Conn
	readyTimer   *time.Timer
	intentional  bool
	openedAt     time.Time
	lastActivity time.Time
	gen          int
	dialDone     chan struct{}

	wmu sync.Mutex

	ready     emitter[struct{}]
	startAck  emitter[struct{}]
	audio     emitter[[]byte]
	viseme    emitter[protocol.Viseme]
	meta      emitter[json.RawMessage]
	errs      emitter[*shared.SessionError]
	heartbeat emitter[struct{}]
	ended     emitter[struct{}]
	logs      emitter[string]
}

func New(cfg Config) *Client {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaultGraceWindow
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	id := uuid.NewString()
	return &Client{
		cfg: cfg,
		id:  id,
		log: log.With("session_id", id),
		phase: fsm.NewFSM(
			PhaseDisconnected,
			fsm.Events{
				{Name: evDial, Src: []string{PhaseDisconnected, PhaseClosed}, Dst: PhaseConnecting},
				{Name: evOpen, Src: []string{PhaseConnecting}, Dst: PhaseAwaitingReady},
				{Name: evReady, Src: []string{PhaseAwaitingReady}, Dst: PhaseReady},
				{Name: evClose, Src: []string{PhaseConnecting, PhaseAwaitingReady, PhaseReady}, Dst: PhaseClosed},
			},
			fsm.Callbacks{},
		),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Phase() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.Current()
}

func (c *Client) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Event subscriptions. Each returns an unsubscribe func; multiple
// subscribers fan out in subscription order.

func (c *Client) OnReady(fn func()) func() {
	return c.ready.subscribe(func(struct{}) { fn() })
}

func (c *Client) OnStartAck(fn func()) func() {
	return c.startAck.subscribe(func(struct{}) { fn() })
}

func (c *Client) OnAudioChunk(fn func([]byte)) func() {
	return c.audio.subscribe(fn)
}

func (c *Client) OnViseme(fn func(protocol.Viseme)) func() {
	return c.viseme.subscribe(fn)
}

func (c *Client) OnMeta(fn func(json.RawMessage)) func() {
	return c.meta.subscribe(fn)
}

func (c *Client) OnError(fn func(*shared.SessionError)) func() {
	return c.errs.subscribe(fn)
}

func (c *Client) OnHeartbeat(fn func()) func() {
	return c.heartbeat.subscribe(func(struct{}) { fn() })
}

func (c *Client) OnSessionEnded(fn func()) func() {
	return c.ended.subscribe(func(struct{}) { fn() })
}

func (c *Client) OnLog(fn func(string)) func() {
	return c.logs.subscribe(fn)
}

// Connect dials the endpoint and resolves on transport-open, not on
// protocol readiness; a missing ready frame surfaces later through the
// error subscription as ready_timeout. Calling Connect while a connection
// is open is a no-op; while a dial is in progress it waits for that dial
// to finish instead of racing a second one.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase.Current() {
	case PhaseConnecting:
		done := c.dialDone
		c.mu.Unlock()
		return c.joinDial(ctx, done)
	case PhaseAwaitingReady, PhaseReady:
		c.mu.Unlock()
		return nil
	}
	if err := c.phase.Event(ctx, evDial); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}
	c.intentional = false
	c.gen++
	gen := c.gen
	done := make(chan struct{})
	c.dialDone = done
	c.mu.Unlock()
	defer close(done)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		if gen == c.gen && c.phase.Is(PhaseConnecting) {
			_ = c.phase.Event(context.Background(), evClose)
		}
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		// disconnect landed mid-dial; retire the fresh handle
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	now := time.Now()
	c.openedAt = now
	c.lastActivity = now
	_ = c.phase.Event(context.Background(), evOpen)
	c.readyTimer = time.AfterFunc(c.cfg.ReadyTimeout, func() { c.readyTimedOut(gen) })
	c.mu.Unlock()

	c.log.Debug("transport open, awaiting ready", "timeout", c.cfg.ReadyTimeout)
	go c.readPump(conn, gen)
	return nil
}

// joinDial blocks until the dial already in flight settles, then reports
// whether it produced an open transport.
func (c *Client) joinDial(ctx context.Context, done chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	open := c.conn != nil
	c.mu.Unlock()
	if !open {
		return fmt.Errorf("connect: pending dial failed")
	}
	return nil
}

// Start opens a synthesis session, connecting first if needed. The
// acknowledgement arrives asynchronously via OnStartAck.
func (c *Client) Start(ctx context.Context, opts protocol.StartOptions) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.send(protocol.NewStartCommand(opts))
}

// Speak sends plain text to synthesize, connecting first if needed.
func (c *Client) Speak(ctx context.Context, text string) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.send(protocol.TextCommand{Type: protocol.TypeText, Text: text})
}

// SpeakSSML sends markup to synthesize, connecting first if needed.
func (c *Client) SpeakSSML(ctx context.Context, markup string) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.send(protocol.SSMLCommand{Type: protocol.TypeSSML, SSML: markup})
}

// Cancel is best-effort: it is sent only when a transport already exists
// and never creates a connection just to cancel nothing.
func (c *Client) Cancel() {
	if err := c.send(protocol.SignalCommand{Type: protocol.TypeCancel}); err != nil && !errors.Is(err, shared.ErrNoTransport) {
		c.log.Debug("cancel not delivered", "error", err)
	}
}

// End asks the remote side to finish gracefully; it does not close the
// transport itself, the remote closes after draining.
func (c *Client) End() {
	if err := c.send(protocol.SignalCommand{Type: protocol.TypeEnd}); err != nil && !errors.Is(err, shared.ErrNoTransport) {
		c.log.Debug("end not delivered", "error", err)
	}
}

// Disconnect tears the session down intentionally. Idempotent. The
// readiness timer is always cleared, inbound handling is detached before
// the close, and a handle still mid-dial is abandoned rather than closed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.clearReadyTimerLocked()
	cur := c.phase.Current()
	conn := c.conn
	c.conn = nil
	c.gen++
	if cur == PhaseConnecting || cur == PhaseAwaitingReady || cur == PhaseReady {
		_ = c.phase.Event(context.Background(), evClose)
	}
	c.mu.Unlock()

	if conn == nil || cur == PhaseConnecting {
		return
	}

	c.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	_ = conn.Close()
	c.log.Debug("disconnected")
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return shared.ErrNoTransport
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

func (c *Client) readPump(conn *websocket.Conn, gen int) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.lastActivity = time.Now()
		c.mu.Unlock()

		switch msgType {
		case websocket.BinaryMessage:
			c.audio.emit(data)
		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

func (c *Client) handleText(data []byte) {
	ev, err := protocol.ParseEvent(data)
	if err != nil {
		c.log.Warn("unparseable frame dropped", "error", err)
		c.logs.emit("unparseable frame dropped")
		return
	}

	switch ev.Type {
	case protocol.TypeReady:
		c.mu.Lock()
		c.clearReadyTimerLocked()
		if c.phase.Is(PhaseAwaitingReady) {
			_ = c.phase.Event(context.Background(), evReady)
		}
		c.mu.Unlock()
		c.log.Debug("session ready")
		c.ready.emit(struct{}{})
	case protocol.TypeStart:
		c.startAck.emit(struct{}{})
	case protocol.TypeViseme:
		if ev.Viseme != nil {
			c.viseme.emit(*ev.Viseme)
		}
	case protocol.TypePing:
		c.heartbeat.emit(struct{}{})
	case protocol.TypeEnd:
		c.logs.emit("session ended by remote")
		c.ended.emit(struct{}{})
	case protocol.TypeError, protocol.TypeErrorAlt:
		if ev.Error != nil {
			c.errs.emit(protocol.ClassifyErrorFrame(*ev.Error))
		}
	case protocol.TypeMeta:
		c.meta.emit(ev.Raw)
	default:
		// forward-compat: unknown types fold into meta, never dropped
		c.meta.emit(protocol.WrapMeta(ev.Raw))
	}
}

func (c *Client) handleClose(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	intentional := c.intentional
	cur := c.phase.Current()
	opened := c.openedAt
	c.clearReadyTimerLocked()
	c.conn = nil
	c.gen++
	if cur == PhaseConnecting || cur == PhaseAwaitingReady || cur == PhaseReady {
		_ = c.phase.Event(context.Background(), evClose)
	}
	c.mu.Unlock()

	if intentional {
		return
	}

	var closeErr *websocket.CloseError
	isClose := errors.As(err, &closeErr)
	if isClose && closeErr.Code == websocket.CloseNormalClosure {
		c.log.Debug("connection closed by remote")
		c.logs.emit("connection closed")
		return
	}

	if cur == PhaseAwaitingReady {
		if time.Since(opened) < c.cfg.GraceWindow {
			// incidental cleanup noise from a fast mount/unmount cycle
			c.log.Debug("close within grace window suppressed")
			return
		}
		kind := shared.KindConnectFailed
		code := ""
		if isClose {
			kind = protocol.ClassifyCloseCode(closeErr.Code)
			code = fmt.Sprintf("close_%d", closeErr.Code)
		}
		c.log.Warn("transport closed before ready", "error", err)
		c.errs.emit(shared.NewSessionError(kind, code, err.Error()))
		return
	}

	c.log.Debug("connection lost", "error", err)
	c.logs.emit("connection lost")
}

func (c *Client) readyTimedOut(gen int) {
	c.mu.Lock()
	stale := gen != c.gen || c.intentional || !c.phase.Is(PhaseAwaitingReady)
	if !stale {
		c.readyTimer = nil
	}
	c.mu.Unlock()
	if stale {
		return
	}

	c.log.Warn("no ready frame within timeout", "timeout", c.cfg.ReadyTimeout)
	c.errs.emit(shared.NewSessionError(shared.KindReadyTimeout, "",
		fmt.Sprintf("no ready frame within %s", c.cfg.ReadyTimeout)))
}

func (c *Client) clearReadyTimerLocked() {
	if c.readyTimer != nil {
		c.readyTimer.Stop()
		c.readyTimer = nil
	}
}

package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ariavoice/streamkit/internal/protocol"
	"github.com/ariavoice/streamkit/internal/shared"
)

const defaultChunkSize = 32 * 1024

type Config struct {
	// URL is the full endpoint of the streaming synthesis call.
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Request struct {
	Text    string `json:"text"`
	Model   string `json:"model,omitempty"`
	Format  string `json:"format,omitempty"`
	VoiceID string `json:"voiceId,omitempty"`
}

type Callbacks struct {
	OnAudio func(chunk []byte)
	OnError func(err *shared.SessionError)
	OnDone  func()
}

// Client issues one-shot cancellable streaming synthesis calls. The
// response body multiplexes error payloads and raw audio without an
// envelope, so each chunk is sniffed for a JSON shape before dispatch.
type Client struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:        cfg.URL,
		httpClient: httpClient,
		log:        log,
	}
}

// Speak streams one synthesis call, invoking callbacks until the body is
// drained or the call is cancelled. Starting a new call aborts any call
// still in flight. Blocks until the stream ends; run it on its own
// goroutine when the caller must not wait.
func (c *Client) Speak(ctx context.Context, req Request, cb Callbacks) error {
	c.Cancel()

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()
	// release only this call's own token on the way out; a newer Speak
	// may have replaced it already
	defer func() {
		c.mu.Lock()
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("speak request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if cb.OnError != nil {
			cb.OnError(classifyPayload(payload, resp.StatusCode))
		}
		return nil
	}

	buf := make([]byte, defaultChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.dispatchChunk(chunk, cb)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if cb.OnDone != nil {
					cb.OnDone()
				}
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

// Cancel aborts the in-flight call. Idempotent and safe with nothing in
// flight.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// dispatchChunk routes a chunk opening with an object or array byte that
// parses as JSON to the error callback, everything else to audio. Audio
// bytes that happen to form valid JSON are misrouted; the stream carries
// no framing that could distinguish them.
func (c *Client) dispatchChunk(chunk []byte, cb Callbacks) {
	if looksLikeJSON(chunk) && json.Valid(chunk) {
		c.log.Warn("upstream error payload on audio stream", "bytes", len(chunk))
		if cb.OnError != nil {
			cb.OnError(classifyPayload(chunk, 0))
		}
		return
	}
	if cb.OnAudio != nil {
		cb.OnAudio(chunk)
	}
}

func looksLikeJSON(chunk []byte) bool {
	return len(chunk) > 0 && (chunk[0] == '{' || chunk[0] == '[')
}

func classifyPayload(payload []byte, status int) *shared.SessionError {
	var frame protocol.ErrorFrame
	if err := json.Unmarshal(payload, &frame); err != nil || (frame.Code == "" && frame.Message == "") {
		frame = protocol.ErrorFrame{Message: string(payload)}
	}
	if frame.Status == 0 {
		frame.Status = status
	}
	return protocol.ClassifyErrorFrame(frame)
}

package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxLineSize bounds one SSE line; audio chunks arrive base64 encoded on a
// single line.
const maxLineSize = 16 << 20

const endpointPath = "/stream-audio/"

// Request describes one narration stream.
type Request struct {
	BaseURL   string
	Text      string
	ChunkSize int
	UserID    string
	Token     string
}

type requestBody struct {
	Text      string `json:"text"`
	ChunkSize int    `json:"chunk_size"`
}

// Callbacks receive stream output on the reader goroutine. Exactly one of
// OnError or OnComplete is called, unless the stream was cancelled, in
// which case neither is.
type Callbacks struct {
	OnEvent    func(Event)
	OnError    func(error)
	OnComplete func()
}

// Handle controls an in-flight stream.
type Handle interface {
	// Cancel aborts the request. Safe to call repeatedly and after the
	// stream has finished.
	Cancel()
	// Done is closed once the reader goroutine has exited.
	Done() <-chan struct{}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stream endpoint returned status %d", e.Code)
	}
	return fmt.Sprintf("stream endpoint returned status %d: %s", e.Code, e.Body)
}

type Client struct {
	http   *http.Client
	tracer trace.Tracer
	logger *slog.Logger
}

func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:   httpClient,
		tracer: otel.Tracer("github.com/loqalabs/loqa-narrator/stream"),
		logger: logger.With(slog.String("component", "stream-client")),
	}
}

// Connection is the Handle for one stream.
type Connection struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	body io.Closer
}

func (c *Connection) Cancel() {
	c.once.Do(func() {
		c.cancel()
		c.mu.Lock()
		body := c.body
		c.mu.Unlock()
		if body != nil {
			_ = body.Close()
		}
	})
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) setBody(body io.Closer) {
	c.mu.Lock()
	c.body = body
	c.mu.Unlock()
}

// Start opens the stream and returns immediately. Callbacks are never
// invoked before Start returns to its caller's goroutine.
func (c *Client) Start(ctx context.Context, req Request, cb Callbacks) Handle {
	streamCtx, cancel := context.WithCancel(ctx)
	conn := &Connection{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(conn.done)
		defer cancel()
		c.run(streamCtx, conn, req, cb)
	}()
	return conn
}

func (c *Client) run(ctx context.Context, conn *Connection, req Request, cb Callbacks) {
	ctx, span := c.tracer.Start(ctx, "narration.stream", trace.WithAttributes(
		attribute.Int("narration.chunk_size", req.ChunkSize),
		attribute.Int("narration.text_length", len(req.Text)),
	))
	defer span.End()

	fail := func(err error) {
		if ctx.Err() != nil {
			// cancelled by the owner; nothing to report
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("narration stream failed", slog.String("error", err.Error()))
		if cb.OnError != nil {
			cb.OnError(err)
		}
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		fail(err)
		return
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		fail(err)
		return
	}
	conn.setBody(resp.Body)
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		fail(&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))})
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var events, chunks int
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		ev, ok, err := ParseLine(scanner.Text())
		if err != nil {
			c.logger.Warn("skipping stream line", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		events++
		if ev.Type == EventAudioChunk {
			chunks++
		}
		if cb.OnEvent != nil {
			cb.OnEvent(ev)
		}
	}
	if err := scanner.Err(); err != nil {
		fail(err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	span.SetAttributes(attribute.Int("narration.events", events), attribute.Int("narration.audio_chunks", chunks))
	if cb.OnComplete != nil {
		cb.OnComplete()
	}
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	if strings.TrimSpace(req.BaseURL) == "" {
		return nil, errors.New("stream base url is empty")
	}
	body, err := json.Marshal(requestBody{Text: req.Text, ChunkSize: req.ChunkSize})
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(req.BaseURL, "/") + endpointPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.UserID != "" {
		httpReq.Header.Set("user-id", req.UserID)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	return httpReq, nil
}

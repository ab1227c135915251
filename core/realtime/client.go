package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
)

type Option func(*Client)

// WithEventHook is called with the type of every event sent and received.
// It runs on the reading or sending goroutine and must not block.
func WithEventHook(hook func(source events.Source, eventType string)) Option {
	return func(c *Client) { c.hook = hook }
}

// WithSessionConfig sends a session update right after connecting.
func WithSessionConfig(config SessionConfig) Option {
	return func(c *Client) { c.initial = &config }
}

// Client is a websocket connection to a realtime agent. Server events are
// translated to pipeline events and delivered on Events.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	events    chan events.Event
	closedCh  chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}

	sampleRate           atomic.Int64
	transcriptionEnabled atomic.Bool
	pendingAudio         atomic.Bool

	hook    func(events.Source, string)
	initial *SessionConfig
}

// Dial connects to the agent at cfg.URL. The read loop runs until Close or
// until the remote drops the connection, after which Events is closed.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	ctx, span := tracer.Start(ctx, "dial realtime", trace.WithAttributes(attribute.String("model", cfg.Model)))
	defer span.End()

	endpoint, err := endpointURL(cfg)
	if err != nil {
		connErr := &ConnectionError{URL: cfg.URL, Op: "parse", Err: err}
		span.RecordError(connErr)
		span.SetStatus(codes.Error, connErr.Error())
		return nil, connErr
	}

	header := http.Header{}
	for k, vals := range cfg.Header {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout, Proxy: http.ProxyFromEnvironment}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		connErr := &ConnectionError{URL: endpoint, Op: "dial", Err: err}
		if resp != nil {
			connErr.Status = resp.StatusCode
		}
		span.RecordError(connErr)
		span.SetStatus(codes.Error, connErr.Error())
		return nil, connErr
	}

	c := &Client{
		conn:     conn,
		events:   make(chan events.Event, cfg.EventBuffer),
		closedCh: make(chan struct{}),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	defaults := DefaultSessionConfig()
	c.sampleRate.Store(int64(defaults.SampleRate))
	c.transcriptionEnabled.Store(defaults.TranscriptionEnabled)

	logger.Info("connected to realtime agent", "url", endpoint)
	go c.readLoop()
	go c.pingLoop()

	if c.initial != nil {
		if err := c.UpdateSession(ctx, *c.initial); err != nil {
			_ = c.Close()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	return c, nil
}

func endpointURL(cfg Config) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme " + u.Scheme)
	}
	q := u.Query()
	if q.Get("model") == "" {
		q.Set("model", cfg.Model)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Events delivers translated server events. The channel is closed when the
// connection ends.
func (c *Client) Events() <-chan events.Event { return c.events }

// Done is closed once the client is closed or the connection is lost.
func (c *Client) Done() <-chan struct{} { return c.closedCh }

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closedCh)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.readDone
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) readLoop() {
	defer func() {
		close(c.events)
		close(c.readDone)
		c.closeOnce.Do(func() {
			close(c.closedCh)
			_ = c.conn.Close()
		})
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closedCh:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("realtime connection lost", "error", err)
				}
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("failed to parse server event", "error", err)
			continue
		}
		if c.hook != nil {
			c.hook(events.SourceRemote, env.Type)
		}

		translated, err := c.translate(env.Type, data)
		if err != nil {
			logger.Warn("failed to decode server event", "error", &EventError{Type: env.Type, Err: err})
			continue
		}
		for _, event := range translated {
			select {
			case c.events <- event:
			case <-c.closedCh:
				return
			}
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closedCh:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Debug("failed to ping realtime agent", "error", err)
			}
		}
	}
}

// send encodes and writes one client event. eventType is used for errors and
// the event hook only.
func (c *Client) send(ctx context.Context, eventType string, event any) error {
	select {
	case <-c.closedCh:
		return &SendError{Type: eventType, Err: ErrClosed}
	case <-ctx.Done():
		return &SendError{Type: eventType, Err: ctx.Err()}
	default:
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return &SendError{Type: eventType, Err: err}
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(deadline)
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return &SendError{Type: eventType, Err: err}
	}

	if c.hook != nil {
		c.hook(events.SourceLocal, eventType)
	}
	return nil
}

func newEventID() string { return "evt_" + uuid.NewString() }

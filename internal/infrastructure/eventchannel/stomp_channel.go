package eventchannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	"catalogsync/pkg/config"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/retry"
	"catalogsync/pkg/tracing"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	URL string
	// SockJS appends the raw websocket transport path ("/websocket") to URL.
	SockJS bool
	// HeartbeatInterval is offered in both directions. Zero selects the default and
	// a negative value disables heart-beats ("0,0").
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	Reconnect         retry.Policy
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Reconnect:         retry.DefaultPolicy(),
	}
}

// ConfigFrom extracts the event channel settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	e := cfg.Events
	return Config{
		URL:               e.URL,
		SockJS:            e.SockJS,
		HeartbeatInterval: e.HeartbeatInterval,
		ReadTimeout:       e.ReadTimeout,
		WriteTimeout:      e.WriteTimeout,
		HandshakeTimeout:  e.HandshakeTimeout,
		Reconnect: retry.Policy{
			InitialInterval: e.Reconnect.InitialInterval,
			MaxInterval:     e.Reconnect.MaxInterval,
			Multiplier:      e.Reconnect.Multiplier,
			Jitter:          e.Reconnect.Jitter,
			MaxElapsedTime:  e.Reconnect.MaxElapsedTime,
			MaxAttempts:     e.Reconnect.MaxAttempts,
		},
	}
}

type topicSubscription struct {
	id       string
	handlers map[uint64]ports.EventHandler
}

var _ ports.EventChannel = (*StompChannel)(nil)

// StompChannel is a STOMP 1.2 client over a websocket. It connects on the first
// Subscribe, keeps one broker subscription per topic and fans every MESSAGE out to
// the handlers of its destination. A dropped transport is re-established with
// backoff; when the policy is exhausted the failure callback fires once.
type StompChannel struct {
	mu        sync.Mutex
	topics    map[string]*topicSubscription
	nextSub   int
	nextID    uint64
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	connected atomic.Bool

	writeMu sync.Mutex
	// deliverMu is held for reading while handlers run; unsubscribe takes it for
	// writing so no removed handler is still executing once it returns.
	deliverMu sync.RWMutex

	cfg       Config
	endpoint  string
	dialer    *websocket.Dialer
	sessions  ports.SessionProvider
	onFailure func(error)
	metrics   ports.MetricsCollector
	logger    *zap.SugaredLogger
}

// New creates a channel. sessions supplies the bearer token at every connect and may
// be nil for a broker that accepts anonymous clients.
func New(cfg Config, sessions ports.SessionProvider, metrics ports.MetricsCollector, log *zap.SugaredLogger) (*StompChannel, error) {
	def := DefaultConfig()
	switch {
	case cfg.HeartbeatInterval == 0:
		cfg.HeartbeatInterval = def.HeartbeatInterval
	case cfg.HeartbeatInterval < 0:
		cfg.HeartbeatInterval = 0
	}
	if cfg.HeartbeatInterval > 0 && cfg.ReadTimeout <= cfg.HeartbeatInterval {
		cfg.ReadTimeout = 3 * cfg.HeartbeatInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.Reconnect.InitialInterval <= 0 {
		cfg.Reconnect = def.Reconnect
	}

	endpoint, err := websocketURL(cfg.URL, cfg.SockJS)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	return &StompChannel{
		topics:   make(map[string]*topicSubscription),
		cfg:      cfg,
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		sessions: sessions,
		metrics:  metrics,
		logger:   log.With("endpoint", endpoint),
	}, nil
}

// OnPermanentFailure registers fn to run once the reconnect policy gives up.
func (c *StompChannel) OnPermanentFailure(fn func(error)) {
	c.mu.Lock()
	c.onFailure = fn
	c.mu.Unlock()
}

func (c *StompChannel) Connected() bool {
	return c.connected.Load()
}

// Subscribe registers h for topic and returns its unsubscribe function. Removing the
// last handler of the last topic disconnects. The unsubscribe function must not be
// called from inside a handler.
func (c *StompChannel) Subscribe(topic string, h ports.EventHandler) (func(), error) {
	if topic == "" || h == nil {
		return nil, fmt.Errorf("topic and handler are required")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrChannelClosed
	}

	sub, ok := c.topics[topic]
	if !ok {
		c.nextSub++
		sub = &topicSubscription{
			id:       "sub-" + strconv.Itoa(c.nextSub),
			handlers: make(map[uint64]ports.EventHandler),
		}
		c.topics[topic] = sub
	}
	c.nextID++
	id := c.nextID
	sub.handlers[id] = h

	conn := c.conn
	if c.done == nil {
		c.startLocked()
	}
	c.mu.Unlock()

	if !ok && conn != nil {
		if err := c.writeFrame(conn, frame.New(frame.SUBSCRIBE,
			frame.Id, sub.id,
			frame.Destination, topic,
			frame.Ack, "auto",
		)); err != nil {
			// The read loop notices the broken transport and resubscribes on reconnect.
			c.logger.Warnw("failed to send subscribe", "topic", topic, "error", err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(topic, id) })
	}, nil
}

func (c *StompChannel) unsubscribe(topic string, id uint64) {
	c.mu.Lock()
	sub, ok := c.topics[topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(sub.handlers, id)
	if len(sub.handlers) > 0 {
		c.mu.Unlock()
		c.deliverMu.Lock()
		c.deliverMu.Unlock()
		return
	}
	delete(c.topics, topic)
	conn := c.conn
	if len(c.topics) == 0 {
		cancel, done := c.detachLocked()
		c.mu.Unlock()
		c.halt(conn, cancel, done)
		return
	}
	c.mu.Unlock()
	c.deliverMu.Lock()
	c.deliverMu.Unlock()

	if conn != nil {
		if err := c.writeFrame(conn, frame.New(frame.UNSUBSCRIBE, frame.Id, sub.id)); err != nil {
			c.logger.Warnw("failed to send unsubscribe", "topic", topic, "error", err)
		}
	}
}

// Close disconnects and drops every subscription. No handler runs after Close returns.
func (c *StompChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.topics = make(map[string]*topicSubscription)
	conn := c.conn
	cancel, done := c.detachLocked()
	c.mu.Unlock()

	c.halt(conn, cancel, done)
	c.logger.Infow("event channel closed")
	return nil
}

// startLocked launches the connection loop. Must be called with c.mu held.
func (c *StompChannel) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	go c.run(ctx, done)
}

// detachLocked takes ownership of the running loop so a later Subscribe starts a
// fresh one. Must be called with c.mu held.
func (c *StompChannel) detachLocked() (context.CancelFunc, chan struct{}) {
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	return cancel, done
}

// halt sends a best-effort DISCONNECT, cancels the loop and waits for it to exit.
func (c *StompChannel) halt(conn *websocket.Conn, cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	if conn != nil {
		_ = c.writeFrame(conn, frame.New(frame.DISCONNECT))
	}
	cancel()
	<-done
}

func (c *StompChannel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := c.cfg.Reconnect.NewBackOff(ctx)
	attempt := 0
	err := retry.DoWith(ctx, b, func() error {
		attempt++
		if attempt > 1 && c.metrics != nil {
			c.metrics.RecordEventReconnect()
		}
		return c.session(ctx, b)
	}, func(err error, wait time.Duration) {
		c.logger.Warnw("event channel disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"retry_in", wait,
		)
	})

	if err == nil || ctx.Err() != nil {
		return
	}

	c.logger.Errorw("event channel gave up reconnecting", "error", err, "attempts", attempt)
	c.mu.Lock()
	fn := c.onFailure
	// Allow a later Subscribe to start over.
	if c.done == done {
		c.cancel, c.done = nil, nil
	}
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// session runs one connection until it drops. It returns nil only when ctx ends.
func (c *StompChannel) session(ctx context.Context, b backoff.BackOff) error {
	token := ""
	if c.sessions != nil {
		if sess, _ := c.sessions.Current(); sess != nil {
			token = sess.Token
		}
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.logger.Warnw("event channel handshake rejected", "status", resp.StatusCode)
		}
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to dial: %w", err)
	}

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopWatch:
		}
	}()
	defer func() {
		close(stopWatch)
		c.clearConn(conn)
		conn.Close()
	}()

	hb, err := c.handshake(conn, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	b.Reset()
	c.setConn(conn)
	c.logger.Infow("event channel connected")

	if err := c.resubscribe(conn); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if hb.send > 0 {
		hbDone := make(chan struct{})
		defer close(hbDone)
		go c.heartbeat(conn, hb.send, hbDone)
	}

	err = c.readLoop(ctx, conn, c.readDeadline(hb.recv))
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// heartbeats are the intervals agreed in CONNECTED. Zero disables that direction.
type heartbeats struct {
	send time.Duration
	recv time.Duration
}

// negotiateHeartbeat combines our "cx,cy" with the broker's "sx,sy" header. A
// missing or malformed header counts as "0,0".
func negotiateHeartbeat(ours time.Duration, header string) heartbeats {
	sx, sy := parseHeartbeat(header)
	var hb heartbeats
	if ours > 0 && sy > 0 {
		hb.send = max(ours, sy)
	}
	if ours > 0 && sx > 0 {
		hb.recv = max(ours, sx)
	}
	return hb
}

func parseHeartbeat(header string) (time.Duration, time.Duration) {
	x, y, ok := strings.Cut(strings.TrimSpace(header), ",")
	if !ok {
		return 0, 0
	}
	sx, errX := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	sy, errY := strconv.ParseInt(strings.TrimSpace(y), 10, 64)
	if errX != nil || errY != nil || sx < 0 || sy < 0 {
		return 0, 0
	}
	return time.Duration(sx) * time.Millisecond, time.Duration(sy) * time.Millisecond
}

// readDeadline is how long the read loop waits for any frame. Without incoming
// heart-beats an idle connection is legitimate and never times out.
func (c *StompChannel) readDeadline(recv time.Duration) time.Duration {
	if recv <= 0 {
		return 0
	}
	return max(c.cfg.ReadTimeout, 3*recv)
}

func (c *StompChannel) handshake(conn *websocket.Conn, token string) (heartbeats, error) {
	u, _ := url.Parse(c.endpoint)
	hb := strconv.FormatInt(c.cfg.HeartbeatInterval.Milliseconds(), 10)
	headers := []string{
		frame.AcceptVersion, "1.2",
		frame.Host, u.Hostname(),
		frame.HeartBeat, hb + "," + hb,
	}
	if token != "" {
		headers = append(headers, "Authorization", "Bearer "+token)
	}
	if err := c.writeFrame(conn, frame.New(frame.CONNECT, headers...)); err != nil {
		return heartbeats{}, fmt.Errorf("failed to send connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	for {
		f, err := readFrame(conn)
		if err != nil {
			return heartbeats{}, fmt.Errorf("failed to read connected: %w", err)
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.CONNECTED:
			agreed := negotiateHeartbeat(c.cfg.HeartbeatInterval, f.Header.Get(frame.HeartBeat))
			c.logger.Debugw("heart-beat negotiated", "send", agreed.send, "recv", agreed.recv)
			return agreed, nil
		case frame.ERROR:
			return heartbeats{}, fmt.Errorf("broker refused connection: %s", f.Header.Get(frame.Message))
		default:
			return heartbeats{}, fmt.Errorf("unexpected %s frame during handshake", f.Command)
		}
	}
}

func (c *StompChannel) resubscribe(conn *websocket.Conn) error {
	c.mu.Lock()
	frames := make([]*frame.Frame, 0, len(c.topics))
	for topic, sub := range c.topics {
		frames = append(frames, frame.New(frame.SUBSCRIBE,
			frame.Id, sub.id,
			frame.Destination, topic,
			frame.Ack, "auto",
		))
	}
	c.mu.Unlock()

	for _, f := range frames {
		if err := c.writeFrame(conn, f); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", f.Header.Get(frame.Destination), err)
		}
	}
	return nil
}

func (c *StompChannel) heartbeat(conn *websocket.Conn, interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.writeRaw(conn, []byte("\n")); err != nil {
				c.logger.Debugw("heartbeat failed", "error", err)
				return
			}
		}
	}
}

func (c *StompChannel) readLoop(ctx context.Context, conn *websocket.Conn, timeout time.Duration) error {
	for {
		if timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		} else {
			conn.SetReadDeadline(time.Time{})
		}
		f, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("transport dropped: %w", err)
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case frame.MESSAGE:
			c.dispatch(ctx, f)
		case frame.ERROR:
			return fmt.Errorf("broker error: %s", f.Header.Get(frame.Message))
		case frame.RECEIPT:
		default:
			c.logger.Debugw("ignoring frame", "command", f.Command)
		}
	}
}

func (c *StompChannel) dispatch(ctx context.Context, f *frame.Frame) {
	dest := f.Header.Get(frame.Destination)
	subID := f.Header.Get(frame.Subscription)

	c.mu.Lock()
	sub, ok := c.topics[dest]
	if !ok && subID != "" {
		for topic, s := range c.topics {
			if s.id == subID {
				dest, sub, ok = topic, s, true
				break
			}
		}
	}
	var ids []uint64
	if ok {
		ids = make([]uint64, 0, len(sub.handlers))
		for id := range sub.handlers {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordEventMessage(dest)
	}
	if len(ids) == 0 {
		c.logger.Debugw("message without handler", "destination", dest)
		return
	}
	slices.Sort(ids)

	_, span := tracing.TraceEvent(ctx, dest)
	defer span.End()

	c.deliverMu.RLock()
	defer c.deliverMu.RUnlock()
	for _, id := range ids {
		// An earlier handler may have blocked long enough for this one to be removed.
		c.mu.Lock()
		h := sub.handlers[id]
		c.mu.Unlock()
		if h != nil {
			h(f.Body)
		}
	}
}

func (c *StompChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.connected.Store(true)
	if c.metrics != nil {
		c.metrics.RecordEventConnected(true)
	}
}

// clearConn forgets conn unless a newer loop already replaced it.
func (c *StompChannel) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.connected.Store(false)
	if c.metrics != nil {
		c.metrics.RecordEventConnected(false)
	}
}

func (c *StompChannel) writeFrame(conn *websocket.Conn, f *frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := frame.NewWriter(w).Write(f); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (c *StompChannel) writeRaw(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readFrame reads one websocket message and decodes the STOMP frame in it. A
// heart-beat message yields a nil frame.
func readFrame(conn *websocket.Conn) (*frame.Frame, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, err
	}
	f, err := frame.NewReader(r).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return f, err
}

// websocketURL maps http(s) to ws(s) and appends the SockJS raw transport path.
func websocketURL(raw string, sockJS bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid events url %q", raw)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported events url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if sockJS && !strings.HasSuffix(u.Path, "/websocket") {
		u.Path += "/websocket"
	}
	return u.String(), nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"catalogsync/internal/core/ports"
	"catalogsync/pkg/config"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/tracing"
	"catalogsync/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 << 20
)

// Auth modes accepted in Config.AuthMode.
const (
	ModeBearer = "bearer"
	ModeCookie = "cookie"
	ModeBoth   = "both"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	AuthMode  string
	UserAgent string
	// RequestsPerSecond enables a client-side token bucket when > 0.
	RequestsPerSecond float64
	Burst             int
	// MaxBodyBytes caps a response body; larger bodies fail the call. Defaults to 8 MiB.
	MaxBodyBytes int64
}

// ConfigFrom extracts the gateway settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		AuthMode:  cfg.Backend.AuthMode,
		UserAgent: cfg.Backend.UserAgent,
	}
	if cfg.Backend.RateLimit.Enabled {
		c.RequestsPerSecond = cfg.Backend.RateLimit.RequestsPerSecond
		c.Burst = cfg.Backend.RateLimit.Burst
	}
	return c
}

var _ ports.Gateway = (*HTTPGateway)(nil)

// HTTPGateway is the single path from the client to the REST backend. It attaches
// credentials, decodes the response envelope and turns a 401 on an authenticated
// request into exactly one session expiry.
type HTTPGateway struct {
	baseURL   string
	mode      string
	userAgent string
	client    *http.Client
	jar       *resettableJar
	limiter   *rate.Limiter
	maxBody   int64

	sessions ports.SessionProvider
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
	reqLog   *logger.ContextLogger
}

// New creates a gateway. sessions may be nil for anonymous use (browse without login).
func New(cfg Config, sessions ports.SessionProvider, metrics ports.MetricsCollector, log *zap.SugaredLogger) (*HTTPGateway, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = maxBodyBytes
	}
	switch cfg.AuthMode {
	case "":
		cfg.AuthMode = ModeBearer
	case ModeBearer, ModeCookie, ModeBoth:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}
	if log == nil {
		log = logger.Nop()
	}

	g := &HTTPGateway{
		baseURL:   base.String(),
		mode:      cfg.AuthMode,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
		client:    &http.Client{Timeout: cfg.Timeout},
		sessions:  sessions,
		metrics:   metrics,
		logger:    log,
		reqLog:    logger.NewContextLogger(log),
	}
	if cfg.AuthMode != ModeBearer {
		jar, err := newResettableJar()
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		g.jar = jar
		g.client.Jar = jar
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g, nil
}

// ResetCookies drops every cookie, used when the session ends.
func (g *HTTPGateway) ResetCookies() {
	if g.jar != nil {
		g.jar.Reset()
	}
}

func (g *HTTPGateway) Call(ctx context.Context, req ports.Request) (*ports.Envelope, error) {
	// The generation is captured before the request leaves so a 401 can only
	// expire the session it was sent with.
	var gen uint64
	authenticated := false
	token := ""
	if g.sessions != nil && req.Auth != ports.AuthNone {
		if sess, cur := g.sessions.Current(); sess != nil {
			gen = cur
			authenticated = true
			token = sess.Token
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewNetworkError(err)
		}
	}

	ctx, span := tracing.TraceHTTPRequest(ctx, req.Method, req.Path)
	defer span.End()
	requestID := utils.GenerateRequestID()
	ctx = logger.WithRequestID(ctx, requestID)

	httpReq, err := g.newRequest(ctx, req, token)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.observe(ctx, req, 0, start)
		tracing.RecordError(ctx, err)
		return nil, apperrors.NewNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		g.observe(ctx, req, resp.StatusCode, start)
		tracing.RecordError(ctx, err)
		return nil, apperrors.NewNetworkError(err)
	}
	g.observe(ctx, req, resp.StatusCode, start)
	tracing.AddSpanAttributes(ctx, tracing.StatusKey.Int(resp.StatusCode))

	status := resp.StatusCode
	if int64(len(body)) > g.maxBody {
		body = nil
		if status != http.StatusUnauthorized {
			err := apperrors.NewAppError(apperrors.ErrCodeServer, "response body too large", http.StatusBadGateway)
			g.logger.Warnw("response body too large", "method", req.Method, "path", req.Path, "status", status, "limit", g.maxBody)
			tracing.RecordError(ctx, err)
			return nil, err
		}
	}
	var env *ports.Envelope
	if status >= 200 && status < 300 {
		env = decodeEnvelope(status, body)
		// Some endpoints answer 200 and carry the failure in the envelope code. Codes
		// outside the HTTP error range are application codes and pass through.
		if env.Code >= 400 && env.Code <= 599 {
			status = env.Code
		}
	}

	if status == http.StatusUnauthorized {
		if authenticated {
			if g.sessions.Expire(gen) {
				g.logger.Warnw("backend rejected session", "method", req.Method, "path", req.Path)
			}
			err := apperrors.NewAuthExpiredError()
			tracing.RecordError(ctx, err)
			return nil, err
		}
		err := apperrors.NewUnauthorizedError(serverMessage(body))
		tracing.RecordError(ctx, err)
		return nil, err
	}

	if status < 200 || status >= 300 {
		err := apperrors.FromStatus(status, serverMessage(body))
		tracing.RecordError(ctx, err)
		return nil, err
	}

	return env, nil
}

func (g *HTTPGateway) newRequest(ctx context.Context, req ports.Request, token string) (*http.Request, error) {
	target := g.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "failed to encode request body", http.StatusBadRequest)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "failed to create request", http.StatusBadRequest)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if g.userAgent != "" {
		httpReq.Header.Set("User-Agent", g.userAgent)
	}
	if token != "" && g.sendsBearer(req.Auth) {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

func (g *HTTPGateway) sendsBearer(mode ports.AuthMode) bool {
	switch mode {
	case ports.AuthBearer:
		return true
	case ports.AuthCookie, ports.AuthNone:
		return false
	}
	return g.mode == ModeBearer || g.mode == ModeBoth
}

func (g *HTTPGateway) observe(ctx context.Context, req ports.Request, status int, start time.Time) {
	dur := time.Since(start)
	if g.metrics != nil {
		g.metrics.RecordRequest(req.Method, routeOf(req.Path), status, dur)
	}
	g.reqLog.LogRequest(ctx, req.Method, req.Path, status, dur.Milliseconds())
}

// decodeEnvelope reads {code, message, results, totalPages, totalElements}. A body
// that is not such an object is exposed as the raw results.
func decodeEnvelope(status int, body []byte) *ports.Envelope {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &ports.Envelope{Code: status}
	}

	if trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err == nil {
			_, hasResults := probe["results"]
			_, hasCode := probe["code"]
			if hasResults || hasCode {
				var env ports.Envelope
				if err := json.Unmarshal(trimmed, &env); err == nil {
					if env.Code == 0 {
						env.Code = status
					}
					return &env
				}
			}
		}
	}

	if json.Valid(trimmed) {
		return &ports.Envelope{Code: status, Results: json.RawMessage(trimmed)}
	}
	raw, _ := json.Marshal(string(trimmed))
	return &ports.Envelope{Code: status, Results: raw}
}

// serverMessage extracts a human-readable message from an error body, or "".
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return utils.TruncateString(utils.SanitizeString(payload.Message), 300)
	}
	return utils.TruncateString(utils.SanitizeString(payload.Error), 300)
}

// routeOf collapses identifiers in a path so metric labels stay bounded.
func routeOf(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// resettableJar lets the gateway forget cookies atomically on sign-out.
type resettableJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newResettableJar() (*resettableJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &resettableJar{jar: jar}, nil
}

func (j *resettableJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	jar := j.jar
	j.mu.RUnlock()
	jar.SetCookies(u, cookies)
}

func (j *resettableJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	jar := j.jar
	j.mu.RUnlock()
	return jar.Cookies(u)
}

func (j *resettableJar) Reset() {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}

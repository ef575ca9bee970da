// Package hub is the outbound client for a federated ring hub. It stamps
// every request with the headers the hub expects, signs what the auth policy
// requires, gates traffic through the global rate limiter and turns
// responses into payloads or *Error values.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hublink/pkg/httpsig"
	"hublink/pkg/identity"
	"hublink/pkg/policy"
	"hublink/pkg/ratelimit"
	"hublink/pkg/utils"
)

// Version is reported in the default User-Agent.
const Version = "0.1.0"

const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderUserAgent     = "User-Agent"
	HeaderRequestID     = "X-Request-Id"
	// HeaderAuthWarning is set by the hub when it accepted a request but
	// could not authenticate its signature.
	HeaderAuthWarning = "X-Auth-Warning"

	contentTypeJSON = "application/json"
	defaultTimeout  = 30 * time.Second
	defaultMaxBody  = 8 * utils.MegaByte
)

// Observer receives dispatch outcomes. *monitor.Metrics implements it.
type Observer interface {
	ObserveRequest(method, outcome string, signed bool, elapsed time.Duration)
	ObserveAuthWarning()
	ObserveRateLimited(scope, constraint string)
}

// Dispatch outcomes passed to Observer.ObserveRequest.
const (
	OutcomeSuccess   = "success"
	OutcomeNoContent = "no_content"
	OutcomeProtocol  = "protocol_error"
	OutcomeTransport = "transport_error"
	OutcomeDecode    = "decode_error"
)

// Options tunes a Client. The zero value is usable.
type Options struct {
	HTTPClient *http.Client
	// Limiter gates every outbound call. Nil disables global limiting.
	Limiter   *ratelimit.GlobalLimiter
	Clock     clock.Clock
	Logger    *zap.Logger
	Observer  Observer
	UserAgent string
	// CacheSize enables the ring lookup cache when positive.
	CacheSize int
	CacheTTL  time.Duration
	// AuthWarningLogInterval throttles repeated auth warning logs.
	AuthWarningLogInterval time.Duration
	// MaxResponseBytes caps response bodies. Defaults to 8 MiB.
	MaxResponseBytes int64
}

// Response describes a completed 2xx exchange.
type Response struct {
	Status    int
	Header    http.Header
	RequestID string
	Signed    bool
	// NoContent is set for 204 or an empty body; out is left untouched.
	NoContent bool
	// AuthWarning carries the hub's silent authentication failure notice.
	AuthWarning string
}

// AuthWarning is the last silent authentication failure the hub reported.
type AuthWarning struct {
	Method    string
	Path      string
	RequestID string
	Value     string
	At        time.Time
}

// Client talks to one hub as one identity.
type Client struct {
	baseURL    *url.URL
	identity   identity.Identity
	httpClient *http.Client
	limiter    *ratelimit.GlobalLimiter
	clock      clock.Clock
	logger     *zap.Logger
	observer   Observer
	userAgent  string
	maxBody    int64
	rings      *ringCache

	warnLog *rate.Sometimes

	mu           sync.RWMutex
	lastWarning  *AuthWarning
	warningCount uint64
}

// NewClient creates a client for the hub at baseURL.
func NewClient(baseURL string, id identity.Identity, opts Options) (*Client, error) {
	if id == nil {
		return nil, identity.ErrNotConfigured
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid hub URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid hub URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid hub URL %q: missing host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		baseURL:    u,
		identity:   id,
		httpClient: opts.HTTPClient,
		limiter:    opts.Limiter,
		clock:      opts.Clock,
		logger:     opts.Logger,
		observer:   opts.Observer,
		userAgent:  opts.UserAgent,
		maxBody:    opts.MaxResponseBytes,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBody
	}
	if c.userAgent == "" {
		c.userAgent = fmt.Sprintf("hublink/%s (+%s)", Version, id.InstanceID())
	}
	interval := opts.AuthWarningLogInterval
	if interval <= 0 {
		interval = time.Minute
	}
	c.warnLog = &rate.Sometimes{First: 1, Interval: interval}
	if opts.CacheSize > 0 {
		c.rings = newRingCache(opts.CacheSize, opts.CacheTTL)
	}

	return c, nil
}

// BaseURL returns the hub base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Identity returns the identity requests are made as.
func (c *Client) Identity() identity.Identity {
	return c.identity
}

// Limiter returns the global limiter, which may be nil.
func (c *Client) Limiter() *ratelimit.GlobalLimiter {
	return c.limiter
}

// LastAuthWarning returns the most recent silent authentication failure.
func (c *Client) LastAuthWarning() (AuthWarning, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastWarning == nil {
		return AuthWarning{}, false
	}
	return *c.lastWarning, true
}

// AuthWarnings returns how many silent authentication failures were seen.
func (c *Client) AuthWarnings() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warningCount
}

// Prepare builds the request Do would send, fully stamped and signed, without
// consulting the limiter or sending it.
func (c *Client) Prepare(ctx context.Context, method, path string, body any) (*http.Request, bool, error) {
	method = strings.ToUpper(method)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	payload, err := encodeBody(method, body)
	if err != nil {
		return nil, false, err
	}

	target := *c.baseURL
	rel, err := url.Parse(path)
	if err != nil {
		return nil, false, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	target.Path = c.baseURL.Path + rel.Path
	if rel.RawPath != "" {
		target.RawPath = c.baseURL.EscapedPath() + rel.RawPath
	}
	target.RawQuery = rel.RawQuery

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}

	req.Host = target.Host
	req.Header.Set(httpsig.HeaderHost, target.Host)
	req.Header.Set(httpsig.HeaderDate, c.clock.Now().UTC().Format(http.TimeFormat))
	req.Header.Set(HeaderContentType, contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(HeaderUserAgent, c.userAgent)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if payload != nil {
		req.Header.Set(HeaderContentLength, strconv.Itoa(len(payload)))
		req.Header.Set(httpsig.HeaderDigest, httpsig.Digest(payload))
	}

	if !policy.RequiresSignature(c.identity, method, rel.Path) {
		return req, false, nil
	}
	auth, ok := c.identity.(*identity.Authenticated)
	if !ok {
		return req, false, nil
	}

	requestTarget := req.URL.RequestURI()
	var sig string
	if payload != nil {
		sig, err = auth.Signer().SignExpectingDigest(method, requestTarget, req.Header)
	} else {
		sig, err = auth.Signer().Sign(method, requestTarget, req.Header)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to sign %s %s: %w", method, path, err)
	}
	req.Header.Set(httpsig.HeaderAuthorization, sig)

	return req, true, nil
}

// Do sends one request to the hub. A 2xx body is decoded into out when out
// is non-nil. Non-2xx responses and transport failures return *Error; a
// limiter denial returns *ratelimit.LimitError without sending anything.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) (*Response, error) {
	req, signed, err := c.Prepare(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	requestID := req.Header.Get(HeaderRequestID)
	logger := c.logger.With(
		zap.String("method", req.Method),
		zap.String("path", path),
		zap.String("request_id", requestID))

	if c.limiter != nil {
		if err := c.limiter.Allow(); err != nil {
			c.observeLimited(err)
			logger.Debug("Hub call denied by rate limiter", zap.Error(err))
			return nil, err
		}
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(req.Method, OutcomeTransport, signed, start)
		logger.Warn("Hub request failed", zap.Error(err))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		c.observe(req.Method, OutcomeTransport, signed, start)
		return nil, transportError(fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(data)) > c.maxBody {
		c.observe(req.Method, OutcomeTransport, signed, start)
		return nil, transportError(fmt.Errorf("response exceeds %s", utils.FormatSize(c.maxBody)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(req.Method, OutcomeProtocol, signed, start)
		he := parseError(resp.StatusCode, data)
		logger.Debug("Hub returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("code", he.Code),
			zap.String("message", he.Message))
		return nil, he
	}

	r := &Response{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		RequestID: requestID,
		Signed:    signed,
	}

	if warning := resp.Header.Get(HeaderAuthWarning); warning != "" {
		r.AuthWarning = warning
		c.noteAuthWarning(logger, AuthWarning{
			Method:    req.Method,
			Path:      path,
			RequestID: requestID,
			Value:     warning,
			At:        c.clock.Now(),
		}, signed)
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		r.NoContent = true
		c.observe(req.Method, OutcomeNoContent, signed, start)
		return r, nil
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			c.observe(req.Method, OutcomeDecode, signed, start)
			return nil, &Error{
				Message: "failed to decode hub response",
				Status:  resp.StatusCode,
				Err:     err,
			}
		}
	}

	c.observe(req.Method, OutcomeSuccess, signed, start)
	return r, nil
}

func (c *Client) noteAuthWarning(logger *zap.Logger, w AuthWarning, signed bool) {
	c.mu.Lock()
	c.lastWarning = &w
	c.warningCount++
	count := c.warningCount
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ObserveAuthWarning()
	}
	c.warnLog.Do(func() {
		logger.Warn("Hub accepted request without authenticating it",
			zap.String("warning", w.Value),
			zap.Bool("signed", signed),
			zap.Uint64("total_warnings", count))
	})
}

func (c *Client) observe(method, outcome string, signed bool, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRequest(method, outcome, signed, c.clock.Since(start))
}

func (c *Client) observeLimited(err error) {
	if c.observer == nil {
		return
	}
	var le *ratelimit.LimitError
	if errors.As(err, &le) {
		c.observer.ObserveRateLimited(le.Scope, le.Constraint)
	}
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// encodeBody serializes body for POST, PUT and PATCH. Raw bytes and
// json.RawMessage are sent as given. A nil or empty body yields nil.
func encodeBody(method string, body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if !hasBody(method) {
		return nil, fmt.Errorf("%s requests cannot carry a body", method)
	}

	var payload []byte
	switch b := body.(type) {
	case []byte:
		payload = b
	case json.RawMessage:
		payload = b
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

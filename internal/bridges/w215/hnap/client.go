package hnap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// maxResponseSize bounds a single SOAP reply.
	maxResponseSize = 64 << 10

	defaultTimeout     = 5 * time.Second
	defaultMaxFailures = 3
	defaultOpenTimeout = 60 * time.Second
)

// LoginStatus is the outcome of the challenge login.
type LoginStatus string

// LoginStatus values.
const (
	LoginSuccess   LoginStatus = "success"
	LoginFailed    LoginStatus = "failed"
	LoginUndefined LoginStatus = "undefined"
)

// Credentials identify one login attempt.
type Credentials struct {
	// Endpoint is the HNAP URL, e.g. "http://192.168.1.20/HNAP1".
	Endpoint string
	Username string
	Pin      int
}

// Options configure a Client. Zero values use the defaults.
type Options struct {
	// Timeout bounds every HTTP request.
	Timeout time.Duration

	// MaxFailures is the number of consecutive failures to one host that
	// opens its breaker.
	MaxFailures uint32

	// OpenTimeout is how long an open breaker rejects calls before a trial.
	OpenTimeout time.Duration

	// HTTPClient overrides the HTTP client. Its Timeout is left untouched.
	HTTPClient *http.Client
}

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client opens HNAP sessions. It is safe for concurrent use and is meant to
// be shared by every cycle so that breakers persist across cycles.
type Client struct {
	http *http.Client
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	logger Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		http:     httpClient,
		opts:     opts,
		now:      time.Now,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Login runs the challenge login against creds.Endpoint.
//
// The returned error is nil only with LoginSuccess. For LoginFailed it wraps
// ErrLoginFailed; for LoginUndefined it wraps ErrRequestFailed or
// ErrBadResponse with the diagnostic cause.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, LoginStatus, error) {
	body, err := c.call(ctx, creds.Endpoint, "Login", nil, buildEnvelope("Login",
		param{"Action", "request"},
		param{"Username", creds.Username},
		param{"LoginPassword", ""},
		param{"Captcha", ""},
	))
	if err != nil {
		return nil, LoginUndefined, err
	}

	challenge, okChallenge := readValue(body, "Challenge")
	cookie, okCookie := readValue(body, "Cookie")
	publicKey, okKey := readValue(body, "PublicKey")
	if !okChallenge || !okCookie || !okKey {
		return nil, LoginUndefined, fmt.Errorf("%w: login request reply lacks challenge", ErrBadResponse)
	}

	privateKey, loginPassword := deriveKeys(publicKey, strconv.Itoa(creds.Pin), challenge)
	s := &Session{
		client:     c,
		endpoint:   creds.Endpoint,
		cookie:     cookie,
		privateKey: privateKey,
	}

	body, err = c.call(ctx, creds.Endpoint, "Login", s.headers("Login"), buildEnvelope("Login",
		param{"Action", "login"},
		param{"Username", creds.Username},
		param{"LoginPassword", loginPassword},
		param{"Captcha", ""},
	))
	if err != nil {
		return nil, LoginUndefined, err
	}

	result, _ := readValue(body, "LoginResult")
	switch result {
	case string(LoginSuccess):
		return s, LoginSuccess, nil
	case string(LoginFailed):
		return nil, LoginFailed, ErrLoginFailed
	default:
		return nil, LoginUndefined, fmt.Errorf("%w: login result %q", ErrBadResponse, result)
	}
}

// BreakerState returns the breaker state for the host of endpoint
// ("closed", "half-open" or "open").
func (c *Client) BreakerState(endpoint string) string {
	return c.breaker(hostOf(endpoint)).State().String()
}

// call POSTs one SOAP request through the host's breaker and returns the body.
func (c *Client) call(ctx context.Context, endpoint, method string, headers map[string]string, body []byte) ([]byte, error) {
	cb := c.breaker(hostOf(endpoint))

	out, err := cb.Execute(func() (interface{}, error) {
		return c.post(ctx, endpoint, method, headers, body)
	})
	if err != nil {
		if errors.Is(err, ErrRequestFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, method, err)
	}
	return out.([]byte), nil
}

func (c *Client) post(ctx context.Context, endpoint, method string, headers map[string]string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building %s request: %w", ErrRequestFailed, method, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction(method))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRequestFailed, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s reply: %w", ErrRequestFailed, method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: HTTP %d", ErrRequestFailed, method, resp.StatusCode)
	}
	return data, nil
}

// breaker returns the circuit breaker of host, creating it on first use.
func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	maxFailures := c.opts.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     c.opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("hnap breaker state changed", "host", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[host] = cb
	return cb
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

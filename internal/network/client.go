package network

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
)

// ClientConfig configures NewClient.
type ClientConfig struct {
	// RequestTimeout bounds a whole exchange, body included.
	RequestTimeout time.Duration
	UserAgent      string
	// Transport replaces the tuned default, mostly for tests.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// NewClient builds an http.Client that negotiates compression and stamps a
// User-Agent on every request.
func NewClient(cfg ClientConfig) *http.Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: 15 * time.Second}).DialContext,
			TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
			ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       30 * time.Second,
			// Decoding is handled by CompressionMiddleware.
			DisableCompression: true,
			ForceAttemptHTTP2:  true,
		}
	}

	logger.Debug("HTTP client created.", zap.Duration("timeout", cfg.RequestTimeout))
	return &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: &userAgent{next: NewCompressionMiddleware(base), value: cfg.UserAgent},
	}
}

type userAgent struct {
	next  http.RoundTripper
	value string
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if u.value == "" || req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", u.value)
	return u.next.RoundTrip(req)
}

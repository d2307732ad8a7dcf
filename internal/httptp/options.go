package httptp

import (
	"net/http"
	"time"
)

// Options configures the HTTP transport behavior.
//
// Defaults:
// - Client:         a dedicated http.Client without its own timeout
// - RequestTimeout: 10s (used only if the incoming context has no deadline)
// - MaxBodyBytes:   8 MiB
// - Breaker:        disabled
//
// All options are safe to leave zero-valued to use defaults.
type Options struct {
	Client *http.Client
	Header http.Header

	RequestTimeout time.Duration
	MaxBodyBytes   int64

	// BreakerMaxFailures consecutive transport failures open the breaker.
	// Zero disables it.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Option mutates Options
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Client:             &http.Client{},
		Header:             http.Header{},
		RequestTimeout:     10 * time.Second,
		MaxBodyBytes:       8 << 20,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

func WithHTTPClient(c *http.Client) Option      { return func(o *Options) { o.Client = c } }
func WithRequestTimeout(d time.Duration) Option { return func(o *Options) { o.RequestTimeout = d } }
func WithMaxBodyBytes(n int64) Option           { return func(o *Options) { o.MaxBodyBytes = n } }

// WithHeaders adds static headers sent with every request.
func WithHeaders(h map[string]string) Option {
	return func(o *Options) {
		for k, v := range h {
			o.Header.Set(k, v)
		}
	}
}

// WithCircuitBreaker fails requests fast after maxFailures consecutive
// transport failures, for openTimeout, before letting a probe through.
func WithCircuitBreaker(maxFailures uint32, openTimeout time.Duration) Option {
	return func(o *Options) {
		o.BreakerMaxFailures = maxFailures
		if openTimeout > 0 {
			o.BreakerOpenTimeout = openTimeout
		}
	}
}

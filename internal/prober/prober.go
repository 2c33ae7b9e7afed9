package prober

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/NordCoder/pingwatch/internal/domain/service"
)

const (
	DefaultTimeout      = 30 * time.Second
	defaultMaxRedirects = 10
	maxBodyDrain        = 64 << 10
)

type Config struct {
	Timeout         time.Duration
	UserAgent       string
	FollowRedirects bool
	MaxRedirects    int
	VerifyTLS       bool
}

// Prober performs single HTTP GET probes. It is safe for concurrent use.
type Prober struct {
	c   *http.Client
	cfg Config
	now func() time.Time

	mProbes  *prometheus.CounterVec
	mLatency prometheus.Histogram
}

// New builds a Prober. reg may be nil, in which case metrics are not registered.
func New(cfg Config, reg prometheus.Registerer) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}

	client := &http.Client{Transport: otelhttp.NewTransport(transport)}
	if cfg.FollowRedirects {
		limit := cfg.MaxRedirects
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	f := promauto.With(reg)
	return &Prober{
		c:   client,
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
		mProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prober_probes_total", Help: "HTTP probes by outcome",
		}, []string{"outcome"}),
		mLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "prober_latency_seconds", Help: "HTTP probe latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Probe issues one GET against rawURL bounded by timeout (the configured default when <= 0).
// Transport failures and bad statuses are encoded in the result; the only returned
// error is service.ErrInvalidURL.
func (p *Prober) Probe(ctx context.Context, rawURL string, timeout time.Duration) (service.ProbeResult, error) {
	if err := validateURL(rawURL); err != nil {
		p.mProbes.WithLabelValues("invalid").Inc()
		return service.ProbeResult{}, err
	}
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return service.ProbeResult{}, fmt.Errorf("%w: %v", service.ErrInvalidURL, err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := p.c.Do(req)
	if err != nil {
		lat := time.Since(start)
		p.observe("offline", lat)
		return service.ProbeResult{
			Success:      false,
			LatencyMs:    lat.Milliseconds(),
			ErrorMessage: describeError(ctx, pctx, err, timeout),
			ObservedAt:   p.now(),
		}, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))
	_ = resp.Body.Close()
	lat := time.Since(start)

	res := classify(resp.StatusCode)
	res.LatencyMs = lat.Milliseconds()
	res.ObservedAt = p.now()
	if res.Success {
		p.observe("online", lat)
	} else {
		p.observe("offline", lat)
	}
	return res, nil
}

func (p *Prober) observe(outcome string, lat time.Duration) {
	p.mProbes.WithLabelValues(outcome).Inc()
	p.mLatency.Observe(lat.Seconds())
}

// classify maps a received status code: 2xx/3xx up, 4xx down without error text, 5xx down with error text.
func classify(code int) service.ProbeResult {
	c := code
	res := service.ProbeResult{HTTPStatus: &c}
	switch {
	case code >= 200 && code < 400:
		res.Success = true
	case code >= 500:
		res.ErrorMessage = fmt.Sprintf("request failed with status code %d", code)
	}
	return res
}

func validateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", service.ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q: unsupported scheme %q", service.ErrInvalidURL, raw, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: missing host", service.ErrInvalidURL, raw)
	}
	return nil
}

func describeError(parent, pctx context.Context, err error, timeout time.Duration) string {
	if parent.Err() != nil {
		return "probe canceled"
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("timeout after %dms", timeout.Milliseconds())
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns lookup failed: " + dnsErr.Error()
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "connection refused"
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}

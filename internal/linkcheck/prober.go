package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raysh454/sitescore/internal/logging"
)

// Prober reports the HTTP status of a link target. A non-nil error means the
// target could not be reached at all.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// DefaultUserAgent identifies link checks in target server logs.
const DefaultUserAgent = "sitescore-linkcheck/1.0"

// HTTPProber is the net/http backed Prober. It sends HEAD and retries with
// GET when the server rejects HEAD.
type HTTPProber struct {
	client    *http.Client
	logger    logging.Logger
	userAgent string
}

// NewHTTPProber wraps httpClient; nil gets a client with the given timeout.
func NewHTTPProber(httpClient *http.Client, timeout time.Duration, logger logging.Logger) *HTTPProber {
	if logger == nil {
		logger = logging.Nop()
	}
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPProber{
		client:    httpClient,
		logger:    logger.With(logging.F("backend", "nethttp")),
		userAgent: DefaultUserAgent,
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, url string) (int, error) {
	code, err := p.do(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	if code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented {
		return p.do(ctx, http.MethodGet, url)
	}
	return code, nil
}

func (p *HTTPProber) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("link probe failed",
			logging.F("method", method),
			logging.F("url", url),
			logging.Err(err))
		return 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	// drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

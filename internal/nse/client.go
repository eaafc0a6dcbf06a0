// Package nse downloads daily bhavcopy archives from the exchange.
package nse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/nse-analytics/internal/config"
	"github.com/yourusername/nse-analytics/internal/metrics"
)

// The exchange serves archives only to clients that look like a browser and
// carry the session cookies set by the landing page.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Client fetches UDiFF bhavcopy archives into a local source directory.
type Client struct {
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	baseURL  string
	primeURL string
	primed   bool
	log      *logrus.Entry
}

// NewClient creates a download client from configuration.
func NewClient(cfg *config.DownloadConfig, timeout time.Duration, log *logrus.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = timeout
	rc.HTTPClient.Jar = jar
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil

	return &Client{
		http:     rc,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		baseURL:  cfg.BaseURL,
		primeURL: cfg.PrimeURL,
		log:      log.WithField("component", "nse"),
	}, nil
}

// ArchiveName returns the UDiFF archive file name for a trading date.
func ArchiveName(date time.Time) string {
	return fmt.Sprintf("BhavCopy_NSE_FO_0_0_0_%s_F_0000.csv.zip", date.Format("20060102"))
}

// prime visits the landing page once per client to collect session cookies.
func (c *Client) prime(ctx context.Context) error {
	if c.primed {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.primeURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to prime session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("session prime returned %d", resp.StatusCode)
	}

	c.primed = true
	return nil
}

// Download fetches the archive for a date into destDir and returns the file
// path. An archive already on disk is left alone.
func (c *Client) Download(ctx context.Context, date time.Time, destDir string) (string, error) {
	name := ArchiveName(date)
	dest := filepath.Join(destDir, name)

	if _, err := os.Stat(dest); err == nil {
		c.log.WithField("archive", name).Debug("Archive already present, skipping download")
		metrics.DownloadsTotal.WithLabelValues("skipped").Inc()
		return dest, nil
	}

	if err := c.prime(ctx); err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url := c.baseURL + "/" + name
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.primeURL)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.DownloadsTotal.WithLabelValues("not_found").Inc()
		return "", fmt.Errorf("archive %s not published (404)", name)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("download %s returned %d", name, resp.StatusCode)
	}

	if err := writeAtomically(dest, resp.Body); err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	c.log.WithField("archive", name).Info("Archive downloaded")
	metrics.DownloadsTotal.WithLabelValues("ok").Inc()
	return dest, nil
}

// writeAtomically stages the body in a temp file and renames it into place,
// so the loader never sees a half-written archive.
func writeAtomically(dest string, body io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

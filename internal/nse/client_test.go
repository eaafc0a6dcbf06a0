package nse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/nse-analytics/internal/config"
	"github.com/yourusername/nse-analytics/internal/logger"
)

var feb4 = time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, archiveStatus int, archiveBody []byte) (*Client, *int) {
	t.Helper()

	primes := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		primes++
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "session"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/archives/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(archiveStatus)
		_, _ = w.Write(archiveBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.DownloadConfig{
		BaseURL:        srv.URL + "/archives",
		PrimeURL:       srv.URL + "/",
		TimeoutSeconds: 5,
		RateLimit:      100,
	}
	client, err := NewClient(cfg, 5*time.Second, logger.New("error", "development"))
	require.NoError(t, err)
	return client, &primes
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "BhavCopy_NSE_FO_0_0_0_20250204_F_0000.csv.zip", ArchiveName(feb4))
}

func TestDownloadWritesArchive(t *testing.T) {
	client, primes := newTestClient(t, http.StatusOK, []byte("zipbytes"))
	dir := t.TempDir()

	path, err := client.Download(context.Background(), feb4, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zipbytes", string(data))
	assert.Equal(t, 1, *primes, "session primed exactly once")

	// Second download of another date reuses the session.
	_, err = client.Download(context.Background(), feb4.AddDate(0, 0, 1), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, *primes)
}

func TestDownloadSkipsExistingArchive(t *testing.T) {
	client, primes := newTestClient(t, http.StatusOK, []byte("new"))
	dir := t.TempDir()
	existing := filepath.Join(dir, ArchiveName(feb4))
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	path, err := client.Download(context.Background(), feb4, dir)
	require.NoError(t, err)
	assert.Equal(t, existing, path)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "old", string(data), "existing archive must not be overwritten")
	assert.Equal(t, 0, *primes)
}

func TestDownloadNotPublished(t *testing.T) {
	client, _ := newTestClient(t, http.StatusNotFound, nil)

	_, err := client.Download(context.Background(), feb4, t.TempDir())
	assert.ErrorContains(t, err, "not published")
}

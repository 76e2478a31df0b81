package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vidyasagar/surfshell/internal/config"
	"github.com/vidyasagar/surfshell/internal/storage"
)

// testConfig points every directory at a fresh temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:   dir,
		ConfigDir: dir,
		Cache:     config.CacheConfig{MaxEntries: 16, MaxBytes: 1 << 20},
	}
}

// run executes the CLI and returns stdout.
func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp(cfg, zap.NewNop())
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"surfshell"}, args...))
	return out.String(), err
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>Page %s</title></head><body><p>body of %s</p></body></html>", r.URL.Path, r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func listVisits(t *testing.T, cfg *config.Config) []visitJSON {
	t.Helper()
	out, err := run(t, cfg, "history", "list", "--json")
	require.NoError(t, err)
	var visits []visitJSON
	require.NoError(t, json.Unmarshal([]byte(out), &visits))
	return visits
}

func TestOpenRecordsVisit(t *testing.T) {
	cfg := testConfig(t)
	srv := pageServer(t)

	out, err := run(t, cfg, "open", srv.URL+"/one")
	require.NoError(t, err)
	assert.Contains(t, out, "Page /one")
	assert.Contains(t, out, srv.URL+"/one")

	visits := listVisits(t, cfg)
	require.Len(t, visits, 1)
	assert.Equal(t, srv.URL+"/one", visits[0].URL)
	assert.Equal(t, "Page /one", visits[0].Title)
	assert.Equal(t, "127.0.0.1", visits[0].Host)
	assert.NotEmpty(t, visits[0].ID)

	settings, err := storage.LoadSettingsFrom(cfg.SettingsPath())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/one", settings.LastURL)
	assert.Equal(t, "127.0.0.1", settings.LastHost)
}

func TestOpenPrintsRenderedPage(t *testing.T) {
	cfg := testConfig(t)
	srv := pageServer(t)

	out, err := run(t, cfg, "open", "--print", srv.URL+"/two")
	require.NoError(t, err)
	assert.Contains(t, out, "body of /two")
}

func TestOpenErrors(t *testing.T) {
	cfg := testConfig(t)

	t.Run("missing url", func(t *testing.T) {
		_, err := run(t, cfg, "open")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one URL")
	})

	t.Run("malformed url", func(t *testing.T) {
		_, err := run(t, cfg, "open", "ht!tp://bad")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MALFORMED_INPUT")
		assert.Empty(t, listVisits(t, cfg))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := run(t, cfg, "open", url)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NAVIGATION_FAILURE")
	})
}

func TestHistoryList_QueryAndLimit(t *testing.T) {
	cfg := testConfig(t)
	srv := pageServer(t)

	for _, p := range []string{"/alpha", "/beta", "/gamma"} {
		_, err := run(t, cfg, "open", srv.URL+p)
		require.NoError(t, err)
	}

	visits := listVisits(t, cfg)
	require.Len(t, visits, 3)
	assert.Equal(t, "Page /gamma", visits[0].Title, "newest first")

	out, err := run(t, cfg, "history", "list", "--json", "--query", "beta")
	require.NoError(t, err)
	var filtered []visitJSON
	require.NoError(t, json.Unmarshal([]byte(out), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "Page /beta", filtered[0].Title)

	out, err = run(t, cfg, "history", "list", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Page /gamma")
	assert.Contains(t, out, "Page /beta")
	assert.NotContains(t, out, "Page /alpha")
}

func TestHistoryList_Empty(t *testing.T) {
	out, err := run(t, testConfig(t), "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no history")
}

func TestHistoryDeleteAndClear(t *testing.T) {
	cfg := testConfig(t)
	srv := pageServer(t)

	for _, p := range []string{"/a", "/b"} {
		_, err := run(t, cfg, "open", srv.URL+p)
		require.NoError(t, err)
	}
	visits := listVisits(t, cfg)
	require.Len(t, visits, 2)

	_, err := run(t, cfg, "history", "delete", visits[0].ID)
	require.NoError(t, err)
	remaining := listVisits(t, cfg)
	require.Len(t, remaining, 1)
	assert.Equal(t, visits[1].ID, remaining[0].ID)

	out, err := run(t, cfg, "history", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 1 visits")
	assert.Empty(t, listVisits(t, cfg))
}

func TestHistoryDelete_RequiresID(t *testing.T) {
	_, err := run(t, testConfig(t), "history", "delete")
	require.Error(t, err)
}

func TestSettingsSaveHistory(t *testing.T) {
	cfg := testConfig(t)
	srv := pageServer(t)

	_, err := run(t, cfg, "settings", "save-history", "off")
	require.NoError(t, err)

	out, err := run(t, cfg, "settings", "show")
	require.NoError(t, err)
	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, false, shown["save_history"])

	out, err = run(t, cfg, "open", srv.URL+"/private")
	require.NoError(t, err)
	assert.Contains(t, out, "visit not recorded")
	assert.Empty(t, listVisits(t, cfg))

	_, err = run(t, cfg, "settings", "save-history", "on")
	require.NoError(t, err)
	_, err = run(t, cfg, "open", srv.URL+"/public")
	require.NoError(t, err)
	assert.Len(t, listVisits(t, cfg), 1)
}

func TestSettingsSaveHistory_BadValue(t *testing.T) {
	_, err := run(t, testConfig(t), "settings", "save-history", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on or off")
}

func TestUnknownTheme(t *testing.T) {
	_, err := run(t, testConfig(t), "--theme", "neon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown theme")
}

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-tiercache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tiercache.yaml")
	doc := "default_ttl: 1h\ntiers:\n  - type: filesystem\n    directory: " + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestSetGetDelete(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "set", "greeting", "hello")
	require.NoError(t, err)

	out, err := run(t, cfg, "get", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	out, err = run(t, cfg, "contains", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "true", out)

	_, err = run(t, cfg, "delete", "greeting")
	require.NoError(t, err)

	_, err = run(t, cfg, "get", "greeting")
	assert.ErrorIs(t, err, errNotFound)

	out, err = run(t, cfg, "contains", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "false", out)
}

func TestSetJSON(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "set", "--json", "user", `{"name":"ada","admin":true}`)
	require.NoError(t, err)

	out, err := run(t, cfg, "get", "user")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "ada", decoded["name"])
	assert.Equal(t, true, decoded["admin"])

	_, err = run(t, cfg, "set", "--json", "broken", `{`)
	assert.Error(t, err)
}

func TestNamespaceFlush(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "-n", "users", "set", "ada", "1")
	require.NoError(t, err)
	_, err = run(t, cfg, "-n", "groups", "set", "admins", "2")
	require.NoError(t, err)

	_, err = run(t, cfg, "get", "ada")
	assert.ErrorIs(t, err, errNotFound)

	_, err = run(t, cfg, "-n", "users", "flush")
	require.NoError(t, err)

	_, err = run(t, cfg, "-n", "users", "get", "ada")
	assert.ErrorIs(t, err, errNotFound)
	out, err := run(t, cfg, "-n", "groups", "get", "admins")
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestTTL(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "set", "--ttl", "never", "forever", "x")
	require.NoError(t, err)
	out, err := run(t, cfg, "ttl", "forever")
	require.NoError(t, err)
	assert.Equal(t, "never", out)

	_, err = run(t, cfg, "set", "defaulted", "x")
	require.NoError(t, err)
	out, err = run(t, cfg, "ttl", "defaulted")
	require.NoError(t, err)
	assert.NotEqual(t, "never", out)
	assert.NotEmpty(t, out)

	_, err = run(t, cfg, "ttl", "missing")
	assert.ErrorIs(t, err, errNotFound)

	_, err = run(t, cfg, "set", "--ttl", "-5s", "bad", "x")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "set", "a", "1")
	require.NoError(t, err)

	out, err := run(t, cfg, "stats")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	tiers, ok := stats[cache.StatsTiers].([]any)
	require.True(t, ok)
	assert.Len(t, tiers, 1)
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "nope.yaml"), "get", "x")
	assert.ErrorIs(t, err, cache.ErrConfiguration)
}

func TestParseLifetime(t *testing.T) {
	d, err := parseLifetime("")
	require.NoError(t, err)
	assert.Equal(t, cache.DefaultLifetime, d)

	d, err = parseLifetime("0")
	require.NoError(t, err)
	assert.Equal(t, cache.NoExpiry, d)

	d, err = parseLifetime("1d")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = parseLifetime("soon")
	assert.Error(t, err)
}

func TestOTLPExport(t *testing.T) {
	var exports atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			exports.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := writeConfig(t)
	_, err := run(t, cfg, "--otlp-url", server.URL, "set", "a", "1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), exports.Load())
}

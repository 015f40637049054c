package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/illmade-knight/go-memocache/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness points the CLI at a temp config and snapshot; the source runs command under sh.
type harness struct {
	configPath string
	cachePath  string
}

func newHarness(t *testing.T, command string) *harness {
	t.Helper()
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvBackend, "")
	t.Setenv(config.EnvPath, "")

	dir := t.TempDir()
	h := &harness{
		configPath: filepath.Join(dir, "memocache.yaml"),
		cachePath:  filepath.Join(dir, "app_paths.json"),
	}
	h.setCommand(t, command)
	return h
}

func (h *harness) setCommand(t *testing.T, command string) {
	t.Helper()
	content := fmt.Sprintf("cache:\n  path: %s\nsource:\n  command: [\"sh\", \"-c\", %q, \"sh\", \"{{key}}\"]\n", h.cachePath, command)
	require.NoError(t, os.WriteFile(h.configPath, []byte(content), 0o600))
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(append([]string{"--config", h.configPath}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func decodeLines(t *testing.T, out string) map[string]string {
	t.Helper()
	got := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var r resolvedLine
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		got[r.Key] = r.Value
	}
	return got
}

func TestResolve(t *testing.T) {
	t.Run("Resolves and remembers across runs", func(t *testing.T) {
		// Arrange
		h := newHarness(t, `echo "/Applications/$1.app"`)

		// Act 1: first run resolves through the command.
		out, _, err := h.run(t, "", "resolve", "Safari", "Mail")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Safari": "/Applications/Safari.app", "Mail": "/Applications/Mail.app"}, decodeLines(t, out))

		// Act 2: the command now fails, but cached keys still resolve.
		h.setCommand(t, "exit 1")
		out, _, err = h.run(t, "", "resolve", "Safari", "Notes")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Safari": "/Applications/Safari.app"}, decodeLines(t, out), "uncached key fails and is skipped")
	})

	t.Run("Reads keys from stdin", func(t *testing.T) {
		h := newHarness(t, `echo "value-$1"`)

		out, _, err := h.run(t, "a\n\n  b  \n", "resolve")

		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "value-a", "b": "value-b"}, decodeLines(t, out))
	})

	t.Run("No-cache leaves the cache untouched", func(t *testing.T) {
		h := newHarness(t, `echo "value-$1"`)

		_, _, err := h.run(t, "", "resolve", "--no-cache", "a")
		require.NoError(t, err)

		_, statErr := os.Stat(h.cachePath)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("Corrupt cache is reported", func(t *testing.T) {
		h := newHarness(t, `echo "value-$1"`)
		require.NoError(t, os.WriteFile(h.cachePath, []byte("not json"), 0o600))

		_, stderr, err := h.run(t, "", "resolve", "a")

		require.Error(t, err)
		assert.Contains(t, stderr, "corrupt")
	})
	t.Run("No-cache ignores a corrupt cache", func(t *testing.T) {
		// Arrange
		h := newHarness(t, `echo "value-$1"`)
		require.NoError(t, os.WriteFile(h.cachePath, []byte("not json"), 0o600))

		// Act
		out, _, err := h.run(t, "", "resolve", "--no-cache", "a")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "value-a"}, decodeLines(t, out))
		raw, readErr := os.ReadFile(h.cachePath)
		require.NoError(t, readErr)
		assert.Equal(t, "not json", string(raw))
		_, lockErr := os.Stat(h.cachePath + ".lock")
		assert.True(t, os.IsNotExist(lockErr), "the cache lock should never be taken")
	})
}

func TestPutAndLookup(t *testing.T) {
	h := newHarness(t, "exit 1")

	_, _, err := h.run(t, "", "put", "Finder", "/System/Library/CoreServices/Finder.app")
	require.NoError(t, err)

	out, _, err := h.run(t, "", "lookup", "Finder")
	require.NoError(t, err)
	assert.Equal(t, "/System/Library/CoreServices/Finder.app\n", out)

	_, _, err = h.run(t, "", "lookup", "Safari")
	assert.ErrorIs(t, err, errNotCached)

	out, _, err = h.run(t, "", "resolve", "Finder")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Finder": "/System/Library/CoreServices/Finder.app"}, decodeLines(t, out))
}

func TestFlagsOverrideConfig(t *testing.T) {
	h := newHarness(t, `echo "value-$1"`)
	other := filepath.Join(t.TempDir(), "other.json")

	_, _, err := h.run(t, "", "--path", other, "resolve", "a")
	require.NoError(t, err)

	_, statErr := os.Stat(other)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(h.cachePath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd()
	require.NotNil(t, root)
	assert.Equal(t, "memocache", root.Use)

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"resolve", "lookup", "put", "serve"})
}

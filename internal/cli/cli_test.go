package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliostore/folio/internal/fault"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "folio.yaml")
	cfg := fmt.Sprintf("backend: sqlite\nsqlite:\n  path: %s\n", filepath.Join(dir, "cli_test.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrateCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema at version")

	// Re-running is a no-op, not an error.
	_, err = runCLI(t, cfg, "migrate")
	require.NoError(t, err)
}

func TestEndToEnd_SchemaCreatePublishSearch(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCLI(t, cfg, "migrate")
	require.NoError(t, err)

	specPath := filepath.Join(t.TempDir(), "spec.cue")
	require.NoError(t, os.WriteFile(specPath,
		[]byte("types: { article: { displayName: \"Article\" } }"), 0o600))
	out, err := runCLI(t, cfg, "schema", "put", specPath)
	require.NoError(t, err)
	assert.Contains(t, out, "article")

	out, err = runCLI(t, cfg, "--format", "json", "entity", "create",
		"--name", "hello", "--type", "article",
		"--auth-key", "org/a", "--resolved-auth-key", "org/a",
		"--fields", `{"title": "from the cli"}`)
	require.NoError(t, err)

	var created struct {
		UUID   string `json:"uuid"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "draft", created.Status)

	out, err = runCLI(t, cfg, "--format", "json", "entity", "publish",
		created.UUID, "--version", "1", "--actor", "tester")
	require.NoError(t, err)
	var published struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &published))
	assert.Equal(t, "published", published.Status)

	out, err = runCLI(t, cfg, "--format", "json", "search",
		"--published", "--auth-key", "org/a", "--text", "cli")
	require.NoError(t, err)
	var page struct {
		Entities []struct {
			Entity struct {
				Name string `json:"name"`
			} `json:"entity"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "hello", page.Entities[0].Entity.Name)
}

func TestEntityCreate_UnknownTypeFails(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCLI(t, cfg, "migrate")
	require.NoError(t, err)

	_, err = runCLI(t, cfg, "entity", "create",
		"--name", "x", "--type", "nope", "--auth-key", "a", "--resolved-auth-key", "a")
	require.Error(t, err)
	assert.True(t, fault.IsBadRequest(err))
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLockCommands(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCLI(t, cfg, "migrate")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "lock", "acquire", "reindex", "--handle", "worker-1")
	require.NoError(t, err)
	assert.Contains(t, out, "reindex held by worker-1")

	_, err = runCLI(t, cfg, "lock", "acquire", "reindex", "--handle", "worker-2")
	require.Error(t, err)
	assert.True(t, fault.IsConflict(err))

	_, err = runCLI(t, cfg, "lock", "release", "reindex", "--handle", "worker-1")
	require.NoError(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Run("absent default path falls back", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Backend)
	})

	t.Run("absent explicit path errors", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), true)
		assert.Error(t, err)
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend: oracle\n"), 0o600))
		_, err := LoadConfig(path, true)
		assert.Error(t, err)
	})
}

func TestParseBounds(t *testing.T) {
	box, err := parseBounds("-10.5, 10.5, 170, -170")
	require.NoError(t, err)
	assert.Equal(t, -10.5, box.MinLat)
	assert.Equal(t, 10.5, box.MaxLat)
	assert.Equal(t, 170.0, box.MinLng)
	assert.Equal(t, -170.0, box.MaxLng)

	_, err = parseBounds("1,2,3")
	assert.Error(t, err)
	_, err = parseBounds("1,2,3,x")
	assert.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	for raw, want := range map[string]int{"created": 0, "updated": 1, "name": 2} {
		got, err := parseOrder(raw)
		require.NoError(t, err)
		assert.Equal(t, want, int(got))
	}
	_, err := parseOrder("chaos")
	assert.Error(t, err)
}

func TestInvalidFormatRejected(t *testing.T) {
	cfg := writeConfig(t)
	_, err := runCLI(t, cfg, "--format", "yaml", "migrate")
	assert.Error(t, err)
}

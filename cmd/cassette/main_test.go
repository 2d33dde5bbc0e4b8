package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"cassette/pkg/api"
	"cassette/pkg/recorder"
)

// run executes the CLI with args and returns what it printed
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand(context.Background(), zaptest.NewLogger(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// writeTestConfig writes a config file pointing at a fresh recordings
// directory and returns both paths
func writeTestConfig(t *testing.T, extra string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	recordingsDir := filepath.Join(dir, "recordings")
	configPath := filepath.Join(dir, "cassette.yaml")
	content := fmt.Sprintf("recordings_dir: %s\n%s", recordingsDir, extra)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath, recordingsDir
}

func seedRecordings(t *testing.T, dir string) {
	t.Helper()

	store, err := recorder.NewFileStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	for i, method := range []string{"GET", "POST"} {
		require.NoError(t, store.Save(fmt.Sprintf("%s_api_users_%04d.json", method, i+1), &recorder.Interaction{
			Timestamp: "2026-01-02T03:04:05.000Z",
			Request: recorder.RecordedRequest{
				Method:  method,
				URL:     "/api/users",
				Path:    "/api/users",
				Query:   map[string]string{},
				Headers: map[string]string{},
			},
			Response: recorder.RecordedResponse{
				Status:  200 + i,
				Headers: map[string]string{"content-type": "application/json"},
				Body:    `{"ok":true}`,
			},
			RequestKey: strings.ToLower(method) + ":/api/users",
		}))
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cassette version dev")

	out, err = run(t, "", "version", "--detailed")
	require.NoError(t, err)
	assert.Contains(t, out, "Go Version:")
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cassette.yaml")

	out, err := run(t, "", "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "", "config", "init", "--output", path)
	assert.Error(t, err)

	out, err = run(t, "", "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, err = run(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	var shown map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(strings.TrimPrefix(out, "# loaded from "+path+"\n")), &shown))
	assert.Equal(t, "off", shown["mode"])
}

func TestConfigValidate_RejectsBadPattern(t *testing.T) {
	configPath, _ := writeTestConfig(t, "filters:\n  url_patterns: [\"/api/(v1\"]\n")

	_, err := run(t, "", "config", "validate", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestConfigValidate_MissingFile(t *testing.T) {
	_, err := run(t, "", "config", "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestKeyCommand(t *testing.T) {
	configPath, _ := writeTestConfig(t, "")

	out, err := run(t, "", "key", "--config", configPath, "--method", "get", "--url", "/API/Users?page=1&sort=name")
	require.NoError(t, err)
	assert.Equal(t, "get:/api/users?page=1&sort=name\n", out)

	out, err = run(t, "", "key", "--config", configPath, "-X", "OPTIONS", "--url", "/api/users")
	require.NoError(t, err)
	assert.Contains(t, out, "not eligible")

	_, err = run(t, "", "key", "--config", configPath, "-H", "no-colon")
	assert.Error(t, err)
}

func TestKeyCommand_HeadersAndBody(t *testing.T) {
	configPath, _ := writeTestConfig(t, "matching:\n  include_headers: true\n  include_body: true\n  include_query: false\n")

	out, err := run(t, "", "key", "--config", configPath,
		"-X", "POST", "--url", "/api/users?ignored=1",
		"-H", "X-Tenant: acme",
		"--body", `{"b":2,"a":1}`)
	require.NoError(t, err)

	key := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(key, "post:/api/users|"), key)
	assert.Contains(t, key, "|x-tenant:acme")
	assert.True(t, strings.HasSuffix(key, "|body:"+recorder.BodyHash([]byte(`{"a":1,"b":2}`))), key)
}

func TestRecordingsCommands(t *testing.T) {
	configPath, recordingsDir := writeTestConfig(t, "")
	seedRecordings(t, recordingsDir)

	t.Run("list table", func(t *testing.T) {
		out, err := run(t, "", "recordings", "list", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Found 2 recordings")
		assert.Contains(t, out, "GET_api_users_0001.json")
		assert.Contains(t, out, "POST_api_users_0002.json")
	})

	t.Run("list json filtered", func(t *testing.T) {
		out, err := run(t, "", "recordings", "list", "--config", configPath, "--format", "json", "--method", "post")
		require.NoError(t, err)

		var infos []recorder.RecordingInfo
		require.NoError(t, json.Unmarshal([]byte(out), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, "POST_api_users_0002.json", infos[0].Filename)
		assert.Equal(t, 201, infos[0].Status)
	})

	t.Run("show yaml", func(t *testing.T) {
		out, err := run(t, "", "recordings", "show", "GET_api_users_0001.json", "--config", configPath, "-f", "yaml")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "timestamp: "), out)
		assert.Contains(t, out, "requestKey:")
		assert.Contains(t, out, "get:/api/users")
		assert.Contains(t, out, "status: 200")
	})

	t.Run("show table", func(t *testing.T) {
		out, err := run(t, "", "recordings", "show", "GET_api_users_0001.json", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "GET /api/users")
		assert.Contains(t, out, "content-type: application/json")
		assert.Contains(t, out, `{"ok":true}`)
	})

	t.Run("show missing", func(t *testing.T) {
		_, err := run(t, "", "recordings", "show", "nope.json", "--config", configPath)
		assert.ErrorIs(t, err, recorder.ErrNotFound)
	})

	t.Run("delete needs names or all", func(t *testing.T) {
		_, err := run(t, "", "recordings", "delete", "--config", configPath)
		assert.Error(t, err)
	})

	t.Run("delete one", func(t *testing.T) {
		out, err := run(t, "", "recordings", "delete", "POST_api_users_0002.json", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Deleted POST_api_users_0002.json")

		_, err = os.Stat(filepath.Join(recordingsDir, "POST_api_users_0002.json"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("delete all cancelled", func(t *testing.T) {
		out, err := run(t, "n\n", "recordings", "delete", "--all", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Deletion cancelled")
		assert.FileExists(t, filepath.Join(recordingsDir, "GET_api_users_0001.json"))
	})

	t.Run("delete all confirmed", func(t *testing.T) {
		_, err := run(t, "y\n", "recordings", "delete", "--all", "--config", configPath)
		require.NoError(t, err)

		entries, err := os.ReadDir(recordingsDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestTokenCommand(t *testing.T) {
	configPath, _ := writeTestConfig(t, "admin:\n  jwt_secret: s3cret\n")

	out, err := run(t, "", "token", "--config", configPath, "--subject", "ci")
	require.NoError(t, err)

	auth := api.NewTokenAuth("s3cret", "cassette", zaptest.NewLogger(t))
	subject, err := auth.Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", subject)
}

func TestTokenCommand_NoSecret(t *testing.T) {
	configPath, _ := writeTestConfig(t, "")

	_, err := run(t, "", "token", "--config", configPath)
	assert.Error(t, err)
}

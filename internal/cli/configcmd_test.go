package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `projects: [Alpha, Beta]
redmine: {url: "https://projects.example.org", api_key: k}
confluence: {api_url: "https://wiki.example.org/rest/api", api_token: t}
email: {sender: "bot@example.org", host: smtp.example.org}
recipients: [pm@example.org]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timelogbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigValidate_Valid(t *testing.T) {
	path := writeConfig(t, validConfig)

	out, err := runCLI(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (2 project(s), 1 recipient(s), database timelogbot.db)")
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := writeConfig(t, validConfig+"concurrency: 0\ncolour: blue\n")

	out, err := runCLI(t, "--format", "json", "config", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string `json:"code"`
			Details []struct {
				Path string `json:"path"`
				Line int    `json:"line"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalidConfig, resp.Error.Code)

	paths := map[string]bool{}
	for _, d := range resp.Error.Details {
		paths[d.Path] = true
	}
	assert.True(t, paths["concurrency"], "got %v", resp.Error.Details)
	assert.True(t, paths["colour"], "got %v", resp.Error.Details)
}

func TestConfigValidate_MissingFile(t *testing.T) {
	out, err := runCLI(t, "config", "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, out, "Error [E002]")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv clears every key first so the host environment cannot leak in.
func setEnv(t *testing.T, values map[string]string) {
	t.Helper()
	for _, key := range append(keys, "ci") {
		t.Setenv(EnvName(key), "")
	}
	for k, v := range values {
		t.Setenv(k, v)
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		"UP_E2E_URL":       "https://staging.example.com/",
		"UP_E2E_USERNAME":  "qa@example.com",
		"UP_E2E_PASSWORD":  "secret",
		"UP_E2E_API_TOKEN": "tok",
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, requiredEnv())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com", cfg.URL)
	assert.Equal(t, "tok", cfg.APIToken)
	assert.Equal(t, 10*time.Minute, cfg.GlobalTimeout)
	assert.Equal(t, 10*time.Second, cfg.ExpectTimeout)
	assert.Equal(t, 3*time.Minute, cfg.ScenarioTimeout)
	assert.Equal(t, "playwright", cfg.BaseTag)
	assert.Equal(t, "artifacts", cfg.ArtifactsDir)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 1536, cfg.ViewportWidth)
	assert.Equal(t, 824, cfg.ViewportHeight)
	assert.Equal(t, 0, cfg.Retries)
	assert.False(t, cfg.HasBasicAuth())
	assert.True(t, cfg.IsStaging())
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		drop string
		key  string
	}{
		{"url", "UP_E2E_URL", "url"},
		{"username", "UP_E2E_USERNAME", "username"},
		{"password", "UP_E2E_PASSWORD", "password"},
		{"token", "UP_E2E_API_TOKEN", "api_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := requiredEnv()
			delete(env, tt.drop)
			setEnv(t, env)

			_, err := Load("")
			require.Error(t, err)

			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.key, ce.Key)
			assert.Contains(t, err.Error(), tt.drop)
		})
	}
}

func TestLoad_CIEnablesRetries(t *testing.T) {
	env := requiredEnv()
	env["CI"] = "true"
	setEnv(t, env)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.CI)
	assert.Equal(t, 3, cfg.Retries)
}

func TestLoad_ExplicitRetriesWinOverCI(t *testing.T) {
	env := requiredEnv()
	env["CI"] = "true"
	env["UP_E2E_RETRIES"] = "1"
	setEnv(t, env)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Retries)
}

func TestLoad_BasicAuthMustBePaired(t *testing.T) {
	env := requiredEnv()
	env["UP_E2E_HTTP_BASIC_USERNAME"] = "gate"
	setEnv(t, env)

	_, err := Load("")
	assert.True(t, IsConfigurationError(err))

	env["UP_E2E_HTTP_BASIC_PASSWORD"] = "pass"
	setEnv(t, env)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.HasBasicAuth())
}

func TestLoad_TestRailRequiresCredentials(t *testing.T) {
	env := requiredEnv()
	env["UP_E2E_TESTRAIL_ENABLED"] = "true"
	setEnv(t, env)

	_, err := Load("")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "testrail_username", ce.Key)

	env["UP_E2E_TESTRAIL_USERNAME"] = "u"
	env["UP_E2E_TESTRAIL_PASSWORD"] = "p"
	env["UP_E2E_TESTRAIL_ENDPOINT"] = "https://tr.example.com/index.php?/api/v2/"
	env["UP_E2E_TESTRAIL_STAGING_RUN_ID"] = "17"
	setEnv(t, env)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.TestRail.Enabled)
	assert.Equal(t, "17", cfg.TestRail.StagingRunID)
}

func TestLoad_RejectsRelativeURL(t *testing.T) {
	env := requiredEnv()
	env["UP_E2E_URL"] = "staging.example.com"
	setEnv(t, env)

	_, err := Load("")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "url", ce.Key)
}

func TestLoad_RejectsNonPositiveTimeout(t *testing.T) {
	env := requiredEnv()
	env["UP_E2E_EXPECT_TIMEOUT"] = "0s"
	setEnv(t, env)

	_, err := Load("")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "expect_timeout", ce.Key)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: https://app.example.com
username: file-user
password: file-pass
api_token: file-token
scenario_timeout: 90s
base_tag: nightly
`), 0o644))

	setEnv(t, map[string]string{"UP_E2E_USERNAME": "env-user"})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Username)
	assert.Equal(t, "file-token", cfg.APIToken)
	assert.Equal(t, 90*time.Second, cfg.ScenarioTimeout)
	assert.Equal(t, "nightly", cfg.BaseTag)
	assert.False(t, cfg.IsStaging())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	setEnv(t, requiredEnv())

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.False(t, IsConfigurationError(err))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "UP_E2E_API_TOKEN", EnvName("api_token"))
	assert.Equal(t, "CI", EnvName("ci"))
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outdial/outdial/internal/domain/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ProviderFreeswitch, cfg.Telephony.Provider)
	assert.NotZero(t, cfg.Engine.StuckCallTimeout)
	assert.NotZero(t, cfg.Engine.MaxBatchSize)
	assert.NotZero(t, cfg.Webhooks.PollInterval)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
telephony:
  provider: asterisk
  asterisk:
    host: ast1.internal
    port: 5038
    username: dialer
    password: secret
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, ProviderAsterisk, cfg.Telephony.Provider)
	assert.Equal(t, "ast1.internal", cfg.Telephony.Asterisk.Host)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OUTDIAL_ENVIRONMENT", "staging")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestValidate_ProviderParams(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Telephony.Provider = ProviderAsterisk
	err = cfg.Validate()
	require.Error(t, err, "asterisk selected without connection parameters")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	cfg.Telephony.Asterisk = AsteriskConfig{
		Host: "localhost", Port: 5038, Username: "dialer", Password: "secret",
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Telephony.Provider = "twilio"
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

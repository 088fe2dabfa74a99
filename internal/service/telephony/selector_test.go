package telephony

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/errors"
	"github.com/outdial/outdial/internal/infrastructure/config"
)

func freeswitchConfig() config.TelephonyConfig {
	return config.TelephonyConfig{
		Provider: config.ProviderFreeswitch,
		Freeswitch: config.FreeswitchConfig{
			Host: "localhost", Port: 8021, Password: "ClueCon", Gateway: "provider",
		},
	}
}

func asteriskConfig() config.TelephonyConfig {
	return config.TelephonyConfig{
		Provider: config.ProviderAsterisk,
		Asterisk: config.AsteriskConfig{
			Host: "localhost", Port: 5038, Username: "dialer", Password: "secret",
			Context: "outbound",
		},
	}
}

func TestSelector_BuildsConfiguredProvider(t *testing.T) {
	s := NewSelector(freeswitchConfig(), zap.NewNop())

	p, err := s.Provider()
	require.NoError(t, err)
	assert.IsType(t, &ESLAdapter{}, p)
	assert.Equal(t, "freeswitch", p.Stats().Provider)

	// Repeated calls return the same instance.
	again, err := s.Provider()
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestSelector_ResetSwitchesProvider(t *testing.T) {
	s := NewSelector(freeswitchConfig(), zap.NewNop())
	first, err := s.Provider()
	require.NoError(t, err)

	second, err := s.Reset(asteriskConfig())
	require.NoError(t, err)
	assert.IsType(t, &AMIAdapter{}, second)
	assert.NotSame(t, first, second)

	current, err := s.Provider()
	require.NoError(t, err)
	assert.Same(t, second, current)
}

func TestSelector_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelephonyConfig
	}{
		{
			name: "unknown provider",
			cfg:  config.TelephonyConfig{Provider: "twilio"},
		},
		{
			name: "freeswitch missing password",
			cfg: config.TelephonyConfig{
				Provider:   config.ProviderFreeswitch,
				Freeswitch: config.FreeswitchConfig{Host: "localhost", Port: 8021},
			},
		},
		{
			name: "asterisk missing credentials",
			cfg: config.TelephonyConfig{
				Provider: config.ProviderAsterisk,
				Asterisk: config.AsteriskConfig{Host: "localhost", Port: 5038},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(tt.cfg, zap.NewNop())
			_, err := s.Provider()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
		})
	}
}

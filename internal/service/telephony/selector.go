package telephony

import (
	"sync"

	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/errors"
	"github.com/outdial/outdial/internal/infrastructure/config"
)

// Selector owns the single active protocol adapter. It is constructed
// explicitly and passed by reference; there is no package-level instance.
type Selector struct {
	cfg    config.TelephonyConfig
	logger *zap.Logger

	mu      sync.Mutex
	current Provider
}

func NewSelector(cfg config.TelephonyConfig, logger *zap.Logger) *Selector {
	return &Selector{cfg: cfg, logger: logger}
}

// Provider returns the active adapter, constructing it on first use.
func (s *Selector) Provider() (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current, nil
	}
	p, err := s.build()
	if err != nil {
		return nil, err
	}
	s.current = p
	return p, nil
}

// Reset tears down the active adapter and constructs a fresh one from the
// given configuration, allowing a provider switch without a process restart.
func (s *Selector) Reset(cfg config.TelephonyConfig) (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if err := s.current.Disconnect(); err != nil {
			s.logger.Warn("disconnect during provider reset failed", zap.Error(err))
		}
		s.current = nil
	}

	s.cfg = cfg
	p, err := s.build()
	if err != nil {
		return nil, err
	}
	s.current = p
	return p, nil
}

func (s *Selector) build() (Provider, error) {
	switch s.cfg.Provider {
	case config.ProviderFreeswitch:
		fs := s.cfg.Freeswitch
		if fs.Host == "" || fs.Port == 0 || fs.Password == "" {
			return nil, errors.NewConfigurationError("freeswitch provider requires host, port and password")
		}
		return NewESLAdapter(ESLConfig{
			Host:     fs.Host,
			Port:     fs.Port,
			Password: fs.Password,
			Gateway:  fs.Gateway,
			CallerID: fs.CallerID,
		}, s.logger), nil

	case config.ProviderAsterisk:
		ast := s.cfg.Asterisk
		if ast.Host == "" || ast.Port == 0 || ast.Username == "" || ast.Password == "" {
			return nil, errors.NewConfigurationError("asterisk provider requires host, port, username and password")
		}
		return NewAMIAdapter(AMIConfig{
			Host:     ast.Host,
			Port:     ast.Port,
			Username: ast.Username,
			Password: ast.Password,
			Context:  ast.Context,
			CallerID: ast.CallerID,
		}, s.logger), nil

	default:
		return nil, errors.NewConfigurationError("unknown telephony provider: " + s.cfg.Provider)
	}
}

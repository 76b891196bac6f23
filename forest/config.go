package forest

import (
	"net/http"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ClientSetting is the on-disk client configuration.
type ClientSetting struct {
	APIURL           string  `toml:"api_url"`
	UserID           string  `toml:"user_id"`
	Token            string  `toml:"token"`
	TimeoutSec       int     `toml:"timeout_sec"`
	BackoffInitialMS int     `toml:"backoff_initial_ms"`
	BackoffFactor    float64 `toml:"backoff_factor"`
	BackoffMaxMS     int     `toml:"backoff_max_ms"`
}

// NewClientSetting returns the defaults.
func NewClientSetting() *ClientSetting {
	return &ClientSetting{
		APIURL:           DefaultAPIURL,
		TimeoutSec:       30,
		BackoffInitialMS: 1000,
		BackoffFactor:    2,
		BackoffMaxMS:     30000,
	}
}

// LoadClientSetting reads the TOML file at path, falling back to the
// defaults when the file cannot be read.
func LoadClientSetting(path string) (*ClientSetting, error) {
	s := NewClientSetting()
	blob, err := os.ReadFile(path)
	if err != nil {
		zap.L().Info("client setting file not read, using defaults",
			zap.String("path", path),
			zap.Error(err))
		return s, nil
	}
	if _, err := toml.Decode(string(blob), s); err != nil {
		return nil, errors.Wrapf(err, "decode client setting %s", path)
	}
	return s, nil
}

// Credentials returns the configured credentials.
func (s *ClientSetting) Credentials() Credentials {
	return Credentials{UserID: s.UserID, Token: s.Token}
}

// ClientConfig converts the setting into a client configuration.
func (s *ClientSetting) ClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:     s.APIURL,
		HTTPClient: &http.Client{Timeout: time.Duration(s.TimeoutSec) * time.Second},
		Backoff: BackoffConfig{
			Initial: time.Duration(s.BackoffInitialMS) * time.Millisecond,
			Factor:  s.BackoffFactor,
			Max:     time.Duration(s.BackoffMaxMS) * time.Millisecond,
		},
	}
}

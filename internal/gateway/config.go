package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flemzord/snapkeep/internal/security"
)

// Config is the gateway.http module section.
//
//	modules:
//	  gateway.http:
//	    bind: 127.0.0.1:9180
//	    auth:
//	      bearer_token: ${SNAPKEEP_TOKEN}
type Config struct {
	Bind            string                   `yaml:"bind"`
	Auth            AuthConfig               `yaml:"auth"`
	AuthRateLimit   security.RateLimitConfig `yaml:"auth_rate_limit"`
	ReadTimeout     time.Duration            `yaml:"read_timeout"`
	WriteTimeout    time.Duration            `yaml:"write_timeout"`
	ShutdownTimeout time.Duration            `yaml:"shutdown_timeout"`
}

const defaultBind = "127.0.0.1:9180"

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = defaultBind
	}
	setDuration(&c.ReadTimeout, 10*time.Second)
	setDuration(&c.WriteTimeout, 30*time.Second)
	setDuration(&c.ShutdownTimeout, 5*time.Second)
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("bind %q: %w", c.Bind, err))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("auth: basic_user and basic_pass must be set together"))
	}
	return errors.Join(errs...)
}

// AuthConfig selects how /status and /api callers authenticate. Either
// method may be used, and with neither set those routes are not served.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether at least one complete auth method is set.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

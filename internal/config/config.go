// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat snake_case keys, mirrored by koanf struct tags.
// - New() returns the defaults; Load layers file and environment on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"time"
)

// Backend names.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
)

// Auth modes.
const (
	AuthFirebase = "firebase"
	AuthInsecure = "insecure"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Backend selects the live document store: memory or firestore.
	Backend string `koanf:"backend"`

	// ProjectID and CredentialsFile configure the Firebase project.
	ProjectID       string `koanf:"project_id"`
	CredentialsFile string `koanf:"credentials_file"`

	// FixturesFile seeds the memory backend at startup.
	FixturesFile string `koanf:"fixtures_file"`

	// FunctionsRegion and FunctionsBaseURL locate the callable functions.
	// FunctionsBaseURL wins when set (emulators, tests).
	FunctionsRegion  string `koanf:"functions_region"`
	FunctionsBaseURL string `koanf:"functions_base_url"`
	RPCTimeoutMS     int    `koanf:"rpc_timeout_ms"`

	// EventPartition enables the optional event field on ceremonies,
	// categories and competitions. When off, every record matches any event.
	EventPartition bool `koanf:"event_partition"`

	// MailboxSize bounds each fan-out aggregator's pending message queue.
	MailboxSize int `koanf:"mailbox_size"`

	// OutboxSize bounds each websocket session's pending frame queue.
	OutboxSize int `koanf:"outbox_size"`

	// VoteConfirmTimeoutMS caps how long a ceremony vote waits for its read-side echo.
	VoteConfirmTimeoutMS int `koanf:"vote_confirm_timeout_ms"`

	// AuthMode selects firebase ID token verification or insecure uid passthrough.
	AuthMode string `koanf:"auth_mode"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		Backend:              BackendMemory,
		FunctionsRegion:      "asia-south1",
		RPCTimeoutMS:         15_000,
		EventPartition:       true,
		MailboxSize:          256,
		OutboxSize:           64,
		VoteConfirmTimeoutMS: 5_000,
		AuthMode:             AuthInsecure,
	}
}

// VoteConfirmTimeout returns VoteConfirmTimeoutMS as a duration.
func (c *Config) VoteConfirmTimeout() time.Duration {
	return time.Duration(c.VoteConfirmTimeoutMS) * time.Millisecond
}

// RPCTimeout returns RPCTimeoutMS as a duration.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutMS) * time.Millisecond
}

// FunctionsURL returns the base URL callable functions are posted to.
func (c *Config) FunctionsURL() string {
	if c.FunctionsBaseURL != "" {
		return c.FunctionsBaseURL
	}
	return fmt.Sprintf("https://%s-%s.cloudfunctions.net", c.FunctionsRegion, c.ProjectID)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Backend != BackendMemory && c.Backend != BackendFirestore:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	case c.Backend == BackendFirestore && c.ProjectID == "":
		return fmt.Errorf("%w: project_id is required for the firestore backend", ErrInvalidConfig)
	case c.AuthMode != AuthFirebase && c.AuthMode != AuthInsecure:
		return fmt.Errorf("%w: unknown auth_mode %q", ErrInvalidConfig, c.AuthMode)
	case c.AuthMode == AuthFirebase && c.Backend != BackendFirestore:
		return fmt.Errorf("%w: auth_mode firebase requires the firestore backend", ErrInvalidConfig)
	case c.MailboxSize < 1:
		return fmt.Errorf("%w: mailbox_size must be positive", ErrInvalidConfig)
	case c.OutboxSize < 1:
		return fmt.Errorf("%w: outbox_size must be positive", ErrInvalidConfig)
	case c.VoteConfirmTimeoutMS < 0:
		return fmt.Errorf("%w: vote_confirm_timeout_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}

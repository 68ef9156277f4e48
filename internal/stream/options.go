package stream

import "github.com/okian/awards/pkg/logger"

const defaultMailboxSize = 256

// Option configures a stream constructor.
type Option func(*settings)

type settings struct {
	name        string
	logger      logger.Logger
	distinct    bool
	mailboxSize int
}

func newSettings(name string, opts []Option) settings {
	s := settings{name: name, logger: logger.Nop(), mailboxSize: defaultMailboxSize}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithName labels the stream in logs and metrics.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the stream logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// Distinct suppresses emissions equal to the previous one.
func Distinct() Option {
	return func(s *settings) { s.distinct = true }
}

// WithMailboxSize bounds a fan-out aggregator's pending messages.
func WithMailboxSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.mailboxSize = n
		}
	}
}

package api

import (
	"time"

	"github.com/okian/awards/pkg/logger"
)

const (
	defaultOutboxSize   = 64
	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
)

// Option configures a Server.
type Option func(*settings)

type settings struct {
	logger       logger.Logger
	outboxSize   int
	writeTimeout time.Duration
	pongWait     time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:       logger.Nop(),
		outboxSize:   defaultOutboxSize,
		writeTimeout: defaultWriteTimeout,
		pongWait:     defaultPongWait,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the gateway logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOutboxSize bounds the frames a websocket session may have pending.
// A session whose outbox fills up is closed.
func WithOutboxSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.outboxSize = n
		}
	}
}

// WithWriteTimeout bounds a single websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithPongWait sets how long a silent peer is kept. Pings go out at 9/10 of it.
func WithPongWait(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pongWait = d
		}
	}
}

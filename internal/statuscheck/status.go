package statuscheck

import (
	"context"
	"errors"
	"time"

	"github.com/local/pdfrange/internal/source"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// S3Checker reports whether the default source bucket is reachable.
type S3Checker interface {
	CheckS3(ctx context.Context) error
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// Checker aggregates readiness checks for the session backend and sources.
type Checker struct {
	redis    RedisPinger
	s3       S3Checker
	sessions SessionCounter
}

// Options configures the Checker. A nil Redis means the memory backend is in use.
type Options struct {
	Redis    RedisPinger
	S3       S3Checker
	Sessions SessionCounter
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
	Sessions Status `json:"sessions"`
	Active   int    `json:"active_sessions"`
}

// Ready is true when every subsystem reports OK.
func (s Summary) Ready() bool {
	return s.Redis.OK && s.S3.OK && s.Sessions.OK
}

func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, s3: opts.S3, sessions: opts.Sessions}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	sessions, active := c.checkSessions(ctx)
	return Summary{
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
		Sessions: sessions,
		Active:   active,
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Not used"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.s3.CheckS3(ctx)
	switch {
	case errors.Is(err, source.ErrS3NotConfigured):
		return Status{OK: true, Message: "Not configured"}
	case err != nil:
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkSessions(ctx context.Context) (Status, int) {
	if c.sessions == nil {
		return Status{OK: false, Message: "store unavailable"}, 0
	}
	n, err := c.sessions.Count(ctx)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}, 0
	}
	return Status{OK: true, Message: "Available"}, n
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}

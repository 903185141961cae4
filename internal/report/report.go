// Package report wraps engine operations with event reporting.
package report

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/metrics"
	"github.com/Rorqualx/proxydl/internal/types"
)

// Operation status labels.
const (
	StatusSuccess = "success"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// Reporter runs body as a named step and reports its outcome.
// The error returned by body is returned unchanged.
type Reporter interface {
	Run(label, subject string, body func() error) error
}

// Logger reports steps to the global zerolog logger and prometheus.
type Logger struct{}

// New returns the default reporter.
func New() Logger {
	return Logger{}
}

// Run implements Reporter.
func (Logger) Run(label, subject string, body func() error) (err error) {
	start := time.Now()
	log.Debug().Str("step", label).Str("subject", subject).Msg("Step started")

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordOperation(label, StatusError)
			log.Error().Str("step", label).Str("subject", subject).Interface("panic", r).Msg("Step panicked")
			panic(r)
		}

		status := Status(err)
		metrics.RecordOperation(label, status)

		var ev *zerolog.Event
		switch status {
		case StatusSuccess:
			ev = log.Info()
		case StatusTimeout:
			ev = log.Warn().Err(err)
		default:
			ev = log.Error().Err(err)
		}
		ev.Str("step", label).
			Str("subject", subject).
			Dur("duration", time.Since(start)).
			Msgf("Step %s", status)
	}()

	return body()
}

// Status classifies err into an operation status label.
func Status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, types.ErrNoFilesDownloaded), errors.Is(err, types.ErrConditionTimedOut):
		return StatusTimeout
	default:
		return StatusError
	}
}

// Nop runs body without reporting.
type Nop struct{}

// Run implements Reporter.
func (Nop) Run(_, _ string, body func() error) error {
	return body()
}

package cleanup

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/logger"
)

type SessionSweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}

type RegistrationSweeper interface {
	DeleteStalePendingRegistrations(ctx context.Context, before time.Time) (int, error)
}

// Result reports what one cleanup pass removed.
type Result struct {
	IncompleteRegistrations int `json:"incomplete_registrations"`
	ExpiredTempData         int `json:"expired_temp_data"`
}

// Job removes the two kinds of debris the purchase flow leaves behind:
// expired temp sessions and registrations whose payment never settled. Both
// sweeps are idempotent, running the job twice in a row removes nothing new.
type Job struct {
	Sessions      SessionSweeper
	Registrations RegistrationSweeper
	StaleAfter    time.Duration
	logger        *logger.Logger
}

func NewJob(sessions SessionSweeper, registrations RegistrationSweeper, staleAfter time.Duration, log *logger.Logger) *Job {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &Job{
		Sessions:      sessions,
		Registrations: registrations,
		StaleAfter:    staleAfter,
		logger:        log,
	}
}

// Run executes both sweeps. A failure in one sweep does not stop the other;
// the first error is returned alongside whatever was removed.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	var firstErr error

	expired, err := j.Sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("CLEANUP", fmt.Sprintf("Expired session sweep failed: %v", err))
		firstErr = err
	} else {
		result.ExpiredTempData = expired
		j.logger.LogCleanup("SESSIONS", fmt.Sprintf("removed %d expired temp sessions", expired))
	}

	cutoff := time.Now().UTC().Add(-j.StaleAfter)
	stale, err := j.Registrations.DeleteStalePendingRegistrations(ctx, cutoff)
	if err != nil {
		j.logger.Error("CLEANUP", fmt.Sprintf("Stale registration sweep failed: %v", err))
		if firstErr == nil {
			firstErr = err
		}
	} else {
		result.IncompleteRegistrations = stale
		j.logger.LogCleanup("REGISTRATIONS", fmt.Sprintf("removed %d stale pending registrations", stale))
	}

	return result, firstErr
}

// Start runs the job on a fixed interval until the context is cancelled.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.LogCleanup("SCHEDULER", fmt.Sprintf("running every %s", interval))
	for {
		select {
		case <-ctx.Done():
			j.logger.LogCleanup("SCHEDULER", "stopped")
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.Error("CLEANUP", fmt.Sprintf("Scheduled run failed: %v", err))
			}
		}
	}
}

package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type tokenPurger interface {
	DeleteExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error)
}

type resetPurger interface {
	DeleteExpiredAndUsed(ctx context.Context, now time.Time) (int64, error)
}

// Janitor periodically deletes terminal ledger rows: expired or revoked
// refresh tokens and expired or used reset tokens. It shares no state
// with the request path; each family is purged in its own statement.
type Janitor struct {
	refreshRepo tokenPurger
	resetRepo   resetPurger
	interval    time.Duration
	purgeWindow time.Duration
}

func NewJanitor(refreshRepo tokenPurger, resetRepo resetPurger, interval time.Duration) *Janitor {
	return &Janitor{
		refreshRepo: refreshRepo,
		resetRepo:   resetRepo,
		interval:    interval,
		purgeWindow: time.Minute,
	}
}

// Run blocks until ctx is cancelled. Purge failures are logged and
// retried on the next tick; they never stop the loop.
func (j *Janitor) Run(ctx context.Context) {
	logrus.WithField("interval", j.interval.String()).Info("Token janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Token janitor stopped")
			return
		case <-ticker.C:
			j.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce runs a single purge pass. Exposed for the cleanup command.
func (j *Janitor) PurgeOnce(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, j.purgeWindow)
	defer cancel()

	now := time.Now().UTC()

	refreshDeleted, err := j.refreshRepo.DeleteExpiredAndRevoked(purgeCtx, now)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge refresh tokens")
	} else {
		logrus.WithField("deleted", refreshDeleted).Info("Purged expired/revoked refresh tokens")
	}

	resetDeleted, err := j.resetRepo.DeleteExpiredAndUsed(purgeCtx, now)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge password reset tokens")
	} else {
		logrus.WithField("deleted", resetDeleted).Info("Purged expired/used password reset tokens")
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-identity/internal/jobs"
)

// Sweeper applies time based status policies across tenants.
type Sweeper interface {
	ExpireStaleCredentials(ctx context.Context, cutoff time.Time) (int64, error)
	ExpireLapsedAccounts(ctx context.Context, now time.Time) (int64, error)
}

// CredentialsExpireJob flips credentialsNonExpired for secrets older than MaxAge.
type CredentialsExpireJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	MaxAge  time.Duration
	clock   func() time.Time
}

// NewCredentialsExpireJob initialises the credential sweep handler.
func NewCredentialsExpireJob(sweeper Sweeper, maxAge time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *CredentialsExpireJob {
	return &CredentialsExpireJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		MaxAge:  maxAge,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the credential sweep.
func (j *CredentialsExpireJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("credentials expire: handler not configured")
	}
	var payload CredentialsExpirePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	maxAge := j.MaxAge
	if payload.MaxAgeSeconds > 0 {
		maxAge = time.Duration(payload.MaxAgeSeconds) * time.Second
	}
	if maxAge <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskCredentialsExpire)
	defer func() { err = tracker.End(err) }()

	cutoff := j.clock().Add(-maxAge)
	logger := loggerOrDefault(j.Logger).With(slog.Time("cutoff", cutoff))
	changed, err := j.Sweeper.ExpireStaleCredentials(ctx, cutoff)
	if err != nil {
		logger.Error("credentials sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddSwept(TaskCredentialsExpire, changed)
	logger.Info("credentials sweep completed", slog.Int64("expired", changed))
	return nil
}

// AccountsExpireJob flips accountNonExpired once account_expires_at passed.
type AccountsExpireJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAccountsExpireJob initialises the account sweep handler.
func NewAccountsExpireJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *AccountsExpireJob {
	return &AccountsExpireJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the account sweep.
func (j *AccountsExpireJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("accounts expire: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAccountsExpire)
	defer func() { err = tracker.End(err) }()

	now := j.clock()
	logger := loggerOrDefault(j.Logger).With(slog.Time("now", now))
	changed, err := j.Sweeper.ExpireLapsedAccounts(ctx, now)
	if err != nil {
		logger.Error("accounts sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddSwept(TaskAccountsExpire, changed)
	logger.Info("accounts sweep completed", slog.Int64("expired", changed))
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

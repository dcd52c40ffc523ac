package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-identity/internal/jobs"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, repo *users.MemoryRepository, email string, credsAt time.Time, expiresAt *time.Time) *users.User {
	t.Helper()
	u, err := users.NewUser(1, email, "Ada", "Lovelace", "$2a$10$opaque")
	require.NoError(t, err)
	u.CredentialsUpdatedAt = credsAt
	u.AccountExpiresAt = expiresAt
	require.NoError(t, repo.Save(context.Background(), u))
	return u
}

func load(t *testing.T, repo *users.MemoryRepository, id int64) *users.User {
	t.Helper()
	u, err := repo.Load(context.Background(), tenant.ID(1), id)
	require.NoError(t, err)
	return u
}

func TestCredentialsExpireJob(t *testing.T) {
	repo := users.NewMemoryRepository()
	stale := seedUser(t, repo, "stale@x.com", fixedNow.Add(-100*24*time.Hour), nil)
	fresh := seedUser(t, repo, "fresh@x.com", fixedNow.Add(-time.Hour), nil)

	registry := prometheus.NewRegistry()
	job := NewCredentialsExpireJob(repo, 90*24*time.Hour, nil, jobmetrics.NewMetrics(registry))
	job.clock = func() time.Time { return fixedNow }

	task, err := NewCredentialsExpireTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.False(t, load(t, repo, stale.ID).CredentialsNonExpired)
	assert.True(t, load(t, repo, fresh.ID).CredentialsNonExpired)
	expected := `
# HELP odyssey_identity_accounts_swept_total Accounts whose status flags a maintenance sweep changed.
# TYPE odyssey_identity_accounts_swept_total counter
odyssey_identity_accounts_swept_total{job="identity:credentials-expire"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "odyssey_identity_accounts_swept_total"))
}

func TestCredentialsExpirePayloadOverridesMaxAge(t *testing.T) {
	repo := users.NewMemoryRepository()
	u := seedUser(t, repo, "a@x.com", fixedNow.Add(-2*time.Hour), nil)

	job := NewCredentialsExpireJob(repo, 90*24*time.Hour, nil, nil)
	job.clock = func() time.Time { return fixedNow }

	task, err := NewCredentialsExpireTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.False(t, load(t, repo, u.ID).CredentialsNonExpired)
}

func TestCredentialsExpireRejectsBadPayload(t *testing.T) {
	job := NewCredentialsExpireJob(users.NewMemoryRepository(), time.Hour, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskCredentialsExpire, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	job.MaxAge = 0
	err = job.Handle(context.Background(), asynq.NewTask(TaskCredentialsExpire, nil))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAccountsExpireJob(t *testing.T) {
	repo := users.NewMemoryRepository()
	past := fixedNow.Add(-time.Minute)
	future := fixedNow.Add(time.Hour)
	lapsed := seedUser(t, repo, "lapsed@x.com", fixedNow, &past)
	active := seedUser(t, repo, "active@x.com", fixedNow, &future)
	forever := seedUser(t, repo, "forever@x.com", fixedNow, nil)

	job := NewAccountsExpireJob(repo, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return fixedNow }

	task, err := NewAccountsExpireTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.False(t, load(t, repo, lapsed.ID).AccountNonExpired)
	assert.False(t, load(t, repo, lapsed.ID).Eligible())
	assert.True(t, load(t, repo, active.ID).AccountNonExpired)
	assert.True(t, load(t, repo, forever.ID).AccountNonExpired)
}

type failingSweeper struct{}

func (failingSweeper) ExpireStaleCredentials(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func (failingSweeper) ExpireLapsedAccounts(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestSweepFailureIsReturnedForRetry(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewAccountsExpireJob(failingSweeper{}, nil, metrics)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAccountsExpire, nil))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	count, err := testutil.GatherAndCount(registry, "odyssey_identity_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUnconfiguredJobs(t *testing.T) {
	var creds *CredentialsExpireJob
	assert.Error(t, creds.Handle(context.Background(), asynq.NewTask(TaskCredentialsExpire, nil)))
	assert.Error(t, (&AccountsExpireJob{}).Handle(context.Background(), asynq.NewTask(TaskAccountsExpire, nil)))
}

func TestManualTaskIDUnique(t *testing.T) {
	a := ManualTaskID(TaskAccountsExpire)
	b := ManualTaskID(TaskAccountsExpire)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "manual:"+TaskAccountsExpire+":"))
}

func TestNewTask(t *testing.T) {
	for _, name := range TaskNames() {
		task, err := NewTask(name)
		require.NoError(t, err)
		assert.Equal(t, name, task.Type())
	}
	_, err := NewTask("identity:unknown")
	assert.Error(t, err)
}

type fakeEnqueuer struct {
	tasks []string
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task.Type())
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: QueueDefault}, nil
}

type recordingGuard struct{ required [][]string }

func (g *recordingGuard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	g.required = append(g.required, perms)
	return func(next http.Handler) http.Handler { return next }
}

func TestHandlerTrigger(t *testing.T) {
	enq := &fakeEnqueuer{}
	guard := &recordingGuard{}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, enq, guard, nil).MountRoutes)
	assert.Equal(t, [][]string{{"jobs.run"}}, guard.required)

	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskAccountsExpire, nil))
	require.Equal(t, http.StatusAccepted, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), `"id":"task-1"`)
	assert.Equal(t, []string{TaskAccountsExpire}, enq.tasks)

	res = httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/jobs/identity:nope", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)

	enq.err = errors.New("redis down")
	res = httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskCredentialsExpire, nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)

	res = httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.True(t, strings.Contains(res.Body.String(), `"queue":"default"`))
}

func TestHandlerWithoutQueue(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil, &recordingGuard{}, nil).MountRoutes)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/jobs/"+TaskAccountsExpire, nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestSweepHandlersRegisterBothTasks(t *testing.T) {
	handlers := SweepHandlers(&CredentialsExpireJob{}, &AccountsExpireJob{})
	require.Len(t, handlers, 2)
	assert.Equal(t, TaskCredentialsExpire, handlers[0].Type)
	assert.Equal(t, TaskAccountsExpire, handlers[1].Type)
	assert.NotNil(t, newMux(handlers))
}

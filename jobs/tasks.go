package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCredentialsExpire expires credentials older than the configured age.
	TaskCredentialsExpire = "identity:credentials-expire"
	// TaskAccountsExpire expires accounts whose lifetime has lapsed.
	TaskAccountsExpire = "identity:accounts-expire"
)

// TaskNames lists the tasks that can be triggered manually.
func TaskNames() []string {
	return []string{TaskCredentialsExpire, TaskAccountsExpire}
}

// CredentialsExpirePayload overrides the maximum credential age of one run.
type CredentialsExpirePayload struct {
	MaxAgeSeconds int64 `json:"max_age_seconds,omitempty"`
}

// NewCredentialsExpireTask builds a credential sweep task. A zero maxAge
// leaves the worker's configured age in effect.
func NewCredentialsExpireTask(maxAge time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CredentialsExpirePayload{MaxAgeSeconds: int64(maxAge / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCredentialsExpire, body, asynq.Queue(QueueDefault)), nil
}

// NewAccountsExpireTask builds an account lifetime sweep task.
func NewAccountsExpireTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskAccountsExpire, []byte("{}"), asynq.Queue(QueueDefault)), nil
}

// NewTask builds a supported task by name with its default payload.
func NewTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskCredentialsExpire:
		return NewCredentialsExpireTask(0)
	case TaskAccountsExpire:
		return NewAccountsExpireTask()
	default:
		return nil, fmt.Errorf("jobs: unsupported job %s", name)
	}
}

// ManualTaskID returns a unique task id for an operator triggered run so it
// can be traced in the queue apart from scheduled runs.
func ManualTaskID(name string) string {
	return "manual:" + name + ":" + uuid.NewString()
}

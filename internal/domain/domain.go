package domain

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Reserved task fields. Everything else in a Task is opaque.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldImageKey  = "imageKey"
)

// TimeLayout is the ISO-8601 millisecond UTC layout used for task timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Task is a task record keyed by field name.
type Task map[string]any

func (t Task) ID() string {
	s, _ := t[FieldID].(string)
	return s
}

// ImageKey returns the attached blob key, or "" when none is set.
func (t Task) ImageKey() string {
	s, _ := t[FieldImageKey].(string)
	return s
}

func (t Task) Clone() Task {
	if t == nil {
		return nil
	}
	return maps.Clone(t)
}

// Present reports whether field holds a usable value: set, non-nil and not
// an empty string.
func (t Task) Present(field string) bool {
	v, ok := t[field]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && s == "" {
		return false
	}
	return true
}

// FormatTime renders ts in TimeLayout.
func FormatTime(ts time.Time) string {
	return ts.UTC().Format(TimeLayout)
}

// IDString renders a caller supplied id value as a string.
func IDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case fmt.Stringer:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}

type DeleteResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type UploadResult struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
}

// Resources is the provisioned infrastructure of one deployment.
type Resources struct {
	Bucket          string
	Table           string
	TopicARN        string
	QueueURL        string
	QueueARN        string
	SubscriptionARN string
}

// KeySchema describes the partition key of a table.
type KeySchema struct {
	HashKey     string
	HashKeyType string
	BillingMode string
}

const (
	AttributeTypeString  = "S"
	BillingPayPerRequest = "PAY_PER_REQUEST"
)

// TaskEvent is published to the task topic after a durable mutation.
type TaskEvent struct {
	Type       string    `json:"type"`
	TaskID     string    `json:"task_id"`
	Task       Task      `json:"task,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventTaskCreated = "task.created"
	EventTaskUpdated = "task.updated"
	EventTaskDeleted = "task.deleted"
)

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrUpstream       = errors.New("upstream failure")
	ErrPartialFailure = errors.New("partial failure")

	ErrTableExists  = errors.New("table already exists")
	ErrBucketExists = errors.New("bucket already exists")
)

// Upstream marks err as a failed call to a backing service.
func Upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

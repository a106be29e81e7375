package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/you-humble/tasksync/internal/domain"
	"github.com/you-humble/tasksync/internal/metrics"
)

type ItemStore interface {
	PutItem(ctx context.Context, table string, item domain.Task) error
	GetItem(ctx context.Context, table, id string) (domain.Task, bool, error)
	DeleteItem(ctx context.Context, table, id string) error
}

type ImageDiscarder interface {
	Discard(ctx context.Context, key string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

// TaskStore keeps task records in the process cache and writes every
// mutation through to the durable item store, cache first. The two writes
// are not atomic: a failed durable write leaves the cache updated.
type TaskStore struct {
	table  string
	cache  *cache
	items  ItemStore
	images ImageDiscarder
	events EventPublisher

	readThrough bool
	now         func() time.Time
}

type TaskStoreOption func(*TaskStore)

// WithEvents publishes a task event after each durable mutation.
func WithEvents(p EventPublisher) TaskStoreOption {
	return func(s *TaskStore) { s.events = p }
}

// WithReadThrough loads records from the durable store on a cache miss.
// Off by default: reads are served from the cache only.
func WithReadThrough(on bool) TaskStoreOption {
	return func(s *TaskStore) { s.readThrough = on }
}

func WithClock(now func() time.Time) TaskStoreOption {
	return func(s *TaskStore) { s.now = now }
}

func NewTaskStore(
	table string,
	items ItemStore,
	images ImageDiscarder,
	opts ...TaskStoreOption,
) *TaskStore {
	s := &TaskStore{
		table:  table,
		cache:  newCache(),
		items:  items,
		images: images,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *TaskStore) Create(ctx context.Context, payload domain.Task) (domain.Task, error) {
	now := s.now()

	task := payload.Clone()
	if task == nil {
		task = domain.Task{}
	}

	id := strconv.FormatInt(now.UnixMilli(), 10)
	if payload.Present(domain.FieldID) {
		id = domain.IDString(payload[domain.FieldID])
	}
	task[domain.FieldID] = id

	if !payload.Present(domain.FieldCreatedAt) {
		task[domain.FieldCreatedAt] = domain.FormatTime(now)
	}
	if !payload.Present(domain.FieldUpdatedAt) {
		task[domain.FieldUpdatedAt] = nil
	}

	s.cache.set(id, task)
	if err := s.items.PutItem(ctx, s.table, task); err != nil {
		s.count("create", metrics.ResultError)
		return nil, domain.Upstream("put task "+id, err)
	}

	s.count("create", metrics.ResultOK)
	s.publish(ctx, domain.EventTaskCreated, id, task, now)

	return task, nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (domain.Task, error) {
	task, err := s.lookup(ctx, id)
	if err != nil {
		s.count("get", resultOf(err))
		return nil, err
	}

	s.count("get", metrics.ResultOK)
	return task, nil
}

// Update merges payload over the cached record, or over an empty record
// when none is cached. id always wins over payload["id"], createdAt is
// kept from the cached record and updatedAt is set to the current time.
func (s *TaskStore) Update(ctx context.Context, id string, payload domain.Task) (domain.Task, error) {
	if s.readThrough {
		if _, err := s.lookup(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.count("update", metrics.ResultError)
			return nil, err
		}
	}

	now := s.now()
	merged := s.cache.update(id, func(prev domain.Task) domain.Task {
		next := make(domain.Task, len(prev)+len(payload))
		maps.Copy(next, prev)
		maps.Copy(next, payload)

		next[domain.FieldID] = id
		if prev.Present(domain.FieldCreatedAt) {
			next[domain.FieldCreatedAt] = prev[domain.FieldCreatedAt]
		}
		next[domain.FieldUpdatedAt] = updatedStamp(now, prev)

		return next
	})

	if err := s.items.PutItem(ctx, s.table, merged); err != nil {
		s.count("update", metrics.ResultError)
		return nil, domain.Upstream("put task "+id, err)
	}

	s.count("update", metrics.ResultOK)
	s.publish(ctx, domain.EventTaskUpdated, id, merged, now)

	return merged, nil
}

// Delete removes the task's image (best effort), then the durable item,
// then the cached record.
func (s *TaskStore) Delete(ctx context.Context, id string) (domain.DeleteResult, error) {
	task, err := s.lookup(ctx, id)
	if err != nil {
		s.count("delete", resultOf(err))
		return domain.DeleteResult{}, err
	}

	partial := false
	if key := task.ImageKey(); key != "" {
		if err := s.images.Discard(ctx, key); err != nil {
			partial = true
			slog.Warn("Failed to delete image",
				slog.String("task_id", id),
				slog.String("image_key", key),
				slog.String("error", errors.Join(domain.ErrPartialFailure, err).Error()),
			)
		} else {
			slog.Info("Deleted image",
				slog.String("task_id", id),
				slog.String("image_key", key),
			)
		}
	}

	if err := s.items.DeleteItem(ctx, s.table, id); err != nil {
		s.count("delete", metrics.ResultError)
		return domain.DeleteResult{}, domain.Upstream("delete task "+id, err)
	}
	s.cache.delete(id)

	if partial {
		s.count("delete", metrics.ResultPartial)
	} else {
		s.count("delete", metrics.ResultOK)
	}
	s.publish(ctx, domain.EventTaskDeleted, id, nil, s.now())

	return domain.DeleteResult{Success: true, ID: id}, nil
}

func (s *TaskStore) lookup(ctx context.Context, id string) (domain.Task, error) {
	if task, ok := s.cache.get(id); ok {
		return task, nil
	}

	if !s.readThrough {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}

	item, ok, err := s.items.GetItem(ctx, s.table, id)
	if err != nil {
		return nil, domain.Upstream("get task "+id, err)
	}
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}

	return s.cache.setIfAbsent(id, item), nil
}

func (s *TaskStore) publish(ctx context.Context, typ, id string, task domain.Task, at time.Time) {
	if s.events == nil {
		return
	}

	err := s.events.Publish(ctx, domain.TaskEvent{
		Type:       typ,
		TaskID:     id,
		Task:       task,
		OccurredAt: at.UTC(),
	})
	if err != nil {
		slog.Warn("publish task event",
			slog.String("task_id", id),
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TaskStore) count(op, result string) {
	metrics.TaskOperationsTotal.WithLabelValues(op, result).Inc()
}

// updatedStamp never moves updatedAt backwards when the clock does.
func updatedStamp(now time.Time, prev domain.Task) string {
	if raw, ok := prev[domain.FieldUpdatedAt].(string); ok {
		if last, err := time.Parse(time.RFC3339Nano, raw); err == nil && last.After(now) {
			return domain.FormatTime(last)
		}
	}
	return domain.FormatTime(now)
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, domain.ErrValidation):
		return metrics.ResultInvalid
	default:
		return metrics.ResultError
	}
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/you-humble/tasksync/internal/domain"
)

var errStoreDown = errors.New("store down")

type fakeItems struct {
	mu      sync.Mutex
	items   map[string]domain.Task
	puts    int
	deletes []string

	putErr    error
	deleteErr error
	getErr    error
}

func newFakeItems() *fakeItems {
	return &fakeItems{items: map[string]domain.Task{}}
}

func (f *fakeItems) PutItem(_ context.Context, _ string, item domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.items[item.ID()] = item.Clone()
	return nil
}

func (f *fakeItems) GetItem(_ context.Context, _ string, id string) (domain.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	t, ok := f.items[id]
	return t.Clone(), ok, nil
}

func (f *fakeItems) DeleteItem(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.items, id)
	return nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	deletes []string

	putErr    error
	deleteErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) PutObject(_ context.Context, bucket, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[bucket+"/"+key] = data
	f.types[bucket+"/"+key] = contentType
	return nil
}

func (f *fakeBlobs) DeleteObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, bucket+"/"+key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, bucket+"/"+key)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.TaskEvent
	err    error
}

func (f *fakeEvents) Publish(_ context.Context, ev domain.TaskEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

// stepClock returns t0, t0+step, t0+2*step, ...
func stepClock(t0 string, step int64) func() time.Time {
	var mu sync.Mutex
	base, err := time.Parse(time.RFC3339, t0)
	if err != nil {
		panic(err)
	}
	n := int64(0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := base.Add(time.Duration(n*step) * time.Millisecond)
		n++
		return ts
	}
}

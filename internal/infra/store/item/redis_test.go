package itemstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/you-humble/tasksync/internal/domain"
	"github.com/you-humble/tasksync/internal/provision"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnReset = errors.New("connection reset")

// memRedis implements the commands the item store uses over in-memory
// hashes and sets. Any other command panics through the nil embedded
// interface. failNext makes the next call of the named command (or "exec"
// for a transaction) fail once.
type memRedis struct {
	redis.Cmdable

	mu       sync.Mutex
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	failNext map[string]error
	calls    map[string]int
}

func newMemRedis() *memRedis {
	return &memRedis{
		hashes:   map[string]map[string]string{},
		sets:     map[string]map[string]struct{}{},
		failNext: map[string]error{},
		calls:    map[string]int{},
	}
}

func (m *memRedis) fail(cmd string) error {
	m.calls[cmd]++
	if err, ok := m.failNext[cmd]; ok {
		delete(m.failNext, cmd)
		return err
	}
	return nil
}

func (m *memRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("smembers"); err != nil {
		return redis.NewStringSliceResult(nil, err)
	}
	out := make([]string, 0, len(m.sets[key]))
	for v := range m.sets[key] {
		out = append(out, v)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (m *memRedis) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("sadd"); err != nil {
		return redis.NewIntResult(0, err)
	}
	return redis.NewIntResult(m.sadd(key, members...), nil)
}

func (m *memRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("hset"); err != nil {
		return redis.NewIntResult(0, err)
	}
	return redis.NewIntResult(m.hset(key, values...), nil)
}

func (m *memRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("hgetall"); err != nil {
		return redis.NewMapStringStringResult(nil, err)
	}
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (m *memRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("del"); err != nil {
		return redis.NewIntResult(0, err)
	}
	return redis.NewIntResult(m.del(keys...), nil)
}

func (m *memRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("exists"); err != nil {
		return redis.NewIntResult(0, err)
	}
	var n int64
	for _, k := range keys {
		_, h := m.hashes[k]
		_, s := m.sets[k]
		if h || s {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memRedis) TxPipeline() redis.Pipeliner {
	return &memTx{m: m}
}

func (m *memRedis) sadd(key string, members ...any) int64 {
	set, ok := m.sets[key]
	if !ok {
		set = map[string]struct{}{}
		m.sets[key] = set
	}
	var added int64
	for _, v := range members {
		s := fmt.Sprint(v)
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			added++
		}
	}
	return added
}

func (m *memRedis) hset(key string, values ...any) int64 {
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}

	fields := map[string]string{}
	if len(values) == 1 {
		switch v := values[0].(type) {
		case map[string]any:
			for k, val := range v {
				fields[k] = fmt.Sprint(val)
			}
		case map[string]string:
			fields = v
		}
	} else {
		for i := 0; i+1 < len(values); i += 2 {
			fields[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
		}
	}

	var added int64
	for k, v := range fields {
		if _, ok := h[k]; !ok {
			added++
		}
		h[k] = v
	}
	return added
}

func (m *memRedis) del(keys ...string) int64 {
	var n int64
	for _, k := range keys {
		_, h := m.hashes[k]
		_, s := m.sets[k]
		if h || s {
			n++
		}
		delete(m.hashes, k)
		delete(m.sets, k)
	}
	return n
}

// memTx queues commands and applies them together on Exec, or not at all
// when Exec fails.
type memTx struct {
	redis.Pipeliner

	m   *memRedis
	ops []func()
}

func (t *memTx) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	t.ops = append(t.ops, func() { t.m.hset(key, values...) })
	return redis.NewIntResult(0, nil)
}

func (t *memTx) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	t.ops = append(t.ops, func() { t.m.sadd(key, members...) })
	return redis.NewIntResult(0, nil)
}

func (t *memTx) Del(_ context.Context, keys ...string) *redis.IntCmd {
	t.ops = append(t.ops, func() { t.m.del(keys...) })
	return redis.NewIntResult(0, nil)
}

func (t *memTx) Exec(context.Context) ([]redis.Cmder, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.fail("exec"); err != nil {
		return nil, err
	}
	for _, op := range t.ops {
		op()
	}
	t.ops = nil
	return nil, nil
}

func newTestStore(t *testing.T) (*redisItemStore, *memRedis) {
	t.Helper()
	rdb := newMemRedis()
	s := NewRedisItemStore(rdb)
	require.NoError(t, s.CreateTable(context.Background(), "Tasks", provision.TaskTableSchema))
	return s, rdb
}

func TestCreateTableFailedWriteLeavesNoTable(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	s := NewRedisItemStore(rdb)

	rdb.failNext["exec"] = errConnReset
	err := s.CreateTable(ctx, "Tasks", provision.TaskTableSchema)
	require.ErrorIs(t, err, errConnReset)

	tables, err := s.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	require.NoError(t, s.CreateTable(ctx, "Tasks", provision.TaskTableSchema))
	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1"}))

	tables, err = s.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tasks"}, tables)
}

func TestCreateTableCompletesRegistrationWithoutSchema(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	rdb.sets[tablesKey()] = map[string]struct{}{"Tasks": {}}
	s := NewRedisItemStore(rdb)

	tables, err := s.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables, "a name without a schema is not a table")

	require.NoError(t, s.CreateTable(ctx, "Tasks", provision.TaskTableSchema))
	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1"}))
}

func TestCreateTableTwice(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.CreateTable(context.Background(), "Tasks", provision.TaskTableSchema)
	assert.ErrorIs(t, err, domain.ErrTableExists)
}

func TestCreateTableValidation(t *testing.T) {
	s := NewRedisItemStore(newMemRedis())

	assert.Error(t, s.CreateTable(context.Background(), "", provision.TaskTableSchema))
	assert.Error(t, s.CreateTable(context.Background(), "Tasks", domain.KeySchema{}))
}

func TestListTablesSorted(t *testing.T) {
	ctx := context.Background()
	s := NewRedisItemStore(newMemRedis())

	for _, name := range []string{"b", "c", "a"} {
		require.NoError(t, s.CreateTable(ctx, name, provision.TaskTableSchema))
	}

	tables, err := s.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tables)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, rdb := newTestStore(t)

	item := domain.Task{
		"id":        "42",
		"title":     "write tests",
		"done":      false,
		"priority":  json.Number("3"),
		"tags":      []any{"a", "b"},
		"meta":      map[string]any{"owner": "kim"},
		"updatedAt": nil,
	}
	require.NoError(t, s.PutItem(ctx, "Tasks", item))

	raw := rdb.hashes[itemKey("Tasks", "42")]
	assert.Equal(t, `"write tests"`, raw["title"], "attributes are stored as JSON")
	assert.Equal(t, "null", raw["updatedAt"])

	got, ok, err := s.GetItem(ctx, "Tasks", "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Task{
		"id":        "42",
		"title":     "write tests",
		"done":      false,
		"priority":  float64(3),
		"tags":      []any{"a", "b"},
		"meta":      map[string]any{"owner": "kim"},
		"updatedAt": nil,
	}, got)
}

func TestPutItemReplacesWholeItem(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1", "title": "a", "imageKey": "k.jpg"}))
	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1", "title": "b"}))

	got, ok, err := s.GetItem(ctx, "Tasks", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Task{"id": "1", "title": "b"}, got)
}

func TestPutItemFailedWriteKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	s, rdb := newTestStore(t)

	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1", "title": "a"}))

	rdb.failNext["exec"] = errConnReset
	assert.ErrorIs(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1", "title": "b"}), errConnReset)

	got, _, err := s.GetItem(ctx, "Tasks", "1")
	require.NoError(t, err)
	assert.Equal(t, "a", got["title"])
}

func TestPutItemMissingKey(t *testing.T) {
	s, _ := newTestStore(t)

	for _, item := range []domain.Task{{"title": "x"}, {"id": ""}} {
		err := s.PutItem(context.Background(), "Tasks", item)
		assert.ErrorContains(t, err, "missing key attribute")
	}
}

func TestGetAndDeleteItem(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, ok, err := s.GetItem(ctx, "Tasks", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1"}))
	require.NoError(t, s.DeleteItem(ctx, "Tasks", "1"))
	require.NoError(t, s.DeleteItem(ctx, "Tasks", "1"), "deleting a missing item is not an error")

	_, ok, err = s.GetItem(ctx, "Tasks", "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownTable(t *testing.T) {
	ctx := context.Background()
	s := NewRedisItemStore(newMemRedis())

	assert.ErrorIs(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1"}), ErrTableNotFound)
	_, _, err := s.GetItem(ctx, "Tasks", "1")
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.ErrorIs(t, s.DeleteItem(ctx, "Tasks", "1"), ErrTableNotFound)
}

func TestSchemaIsCached(t *testing.T) {
	ctx := context.Background()
	s, rdb := newTestStore(t)

	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "1"}))
	reads := rdb.calls["hgetall"]

	rdb.failNext["hgetall"] = errConnReset
	require.NoError(t, s.PutItem(ctx, "Tasks", domain.Task{"id": "2"}), "cached schema skips the lookup")
	assert.Equal(t, reads, rdb.calls["hgetall"])
	delete(rdb.failNext, "hgetall")
}

func TestUpstreamErrors(t *testing.T) {
	ctx := context.Background()
	s, rdb := newTestStore(t)

	rdb.failNext["smembers"] = errConnReset
	_, err := s.ListTables(ctx)
	assert.ErrorIs(t, err, errConnReset)

	rdb.failNext["exists"] = errConnReset
	assert.ErrorIs(t, s.CreateTable(ctx, "Other", provision.TaskTableSchema), errConnReset)

	rdb.failNext["hgetall"] = errConnReset
	_, _, err = s.GetItem(ctx, "Tasks", "1")
	assert.ErrorIs(t, err, errConnReset)

	rdb.failNext["del"] = errConnReset
	assert.ErrorIs(t, s.DeleteItem(ctx, "Tasks", "1"), errConnReset)
}

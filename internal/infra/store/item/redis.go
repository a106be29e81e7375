package itemstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/you-humble/tasksync/internal/domain"

	"github.com/redis/go-redis/v9"
)

var ErrTableNotFound = errors.New("table not found")

// redisItemStore keeps tables of items in redis. A table is a registered
// key namespace; every item is a hash with one JSON-encoded field per
// attribute.
type redisItemStore struct {
	rdb redis.Cmdable

	mu      sync.RWMutex
	schemas map[string]domain.KeySchema
}

func NewRedisItemStore(rdb redis.Cmdable) *redisItemStore {
	return &redisItemStore{
		rdb:     rdb,
		schemas: make(map[string]domain.KeySchema),
	}
}

// ListTables returns the registered tables that have a schema. A name
// registered without one is not a usable table and is left out, so that
// CreateTable can still complete it.
func (s *redisItemStore) ListTables(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, tablesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list tables: %w", err)
	}

	tables := make([]string, 0, len(names))
	for _, name := range names {
		n, err := s.rdb.Exists(ctx, schemaKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis table %q schema: %w", name, err)
		}
		if n > 0 {
			tables = append(tables, name)
		}
	}
	slices.Sort(tables)

	return tables, nil
}

// CreateTable stores the schema and registers table in one transaction.
// It fails with domain.ErrTableExists when the table already has a schema.
func (s *redisItemStore) CreateTable(ctx context.Context, table string, schema domain.KeySchema) error {
	if table == "" {
		return fmt.Errorf("empty table name")
	}
	if schema.HashKey == "" {
		return fmt.Errorf("table %q: empty hash key", table)
	}

	n, err := s.rdb.Exists(ctx, schemaKey(table)).Result()
	if err != nil {
		return fmt.Errorf("redis table %q schema: %w", table, err)
	}
	if n > 0 {
		return fmt.Errorf("create table %q: %w", table, domain.ErrTableExists)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, schemaKey(table), map[string]any{
		"hash_key":      schema.HashKey,
		"hash_key_type": schema.HashKeyType,
		"billing_mode":  schema.BillingMode,
	})
	pipe.SAdd(ctx, tablesKey(), table)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline CreateTable %q: %w", table, err)
	}

	return nil
}

// PutItem replaces the whole item addressed by its hash key.
func (s *redisItemStore) PutItem(ctx context.Context, table string, item domain.Task) error {
	schema, err := s.schema(ctx, table)
	if err != nil {
		return err
	}

	id := domain.IDString(item[schema.HashKey])
	if _, ok := item[schema.HashKey]; !ok || id == "" {
		return fmt.Errorf("put item into %q: missing key attribute %q", table, schema.HashKey)
	}

	fields := make(map[string]any, len(item))
	for name, v := range item {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode attribute %q: %w", name, err)
		}
		fields[name] = string(raw)
	}

	hk := itemKey(table, id)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, hk)
	pipe.HSet(ctx, hk, fields)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline PutItem: %w", err)
	}

	return nil
}

func (s *redisItemStore) GetItem(ctx context.Context, table, id string) (domain.Task, bool, error) {
	if _, err := s.schema(ctx, table); err != nil {
		return nil, false, err
	}

	res, err := s.rdb.HGetAll(ctx, itemKey(table, id)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis get item: %w", err)
	}
	if len(res) == 0 {
		return nil, false, nil
	}

	item := make(domain.Task, len(res))
	for name, raw := range res {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, false, fmt.Errorf("decode attribute %q of %s: %w", name, id, err)
		}
		item[name] = v
	}

	return item, true, nil
}

// DeleteItem removes the item; deleting a missing item is not an error.
func (s *redisItemStore) DeleteItem(ctx context.Context, table, id string) error {
	if _, err := s.schema(ctx, table); err != nil {
		return err
	}

	if err := s.rdb.Del(ctx, itemKey(table, id)).Err(); err != nil {
		return fmt.Errorf("redis delete item: %w", err)
	}

	return nil
}

func (s *redisItemStore) schema(ctx context.Context, table string) (domain.KeySchema, error) {
	s.mu.RLock()
	sc, ok := s.schemas[table]
	s.mu.RUnlock()
	if ok {
		return sc, nil
	}

	res, err := s.rdb.HGetAll(ctx, schemaKey(table)).Result()
	if err != nil {
		return domain.KeySchema{}, fmt.Errorf("redis get schema: %w", err)
	}
	if len(res) == 0 || res["hash_key"] == "" {
		return domain.KeySchema{}, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	sc = domain.KeySchema{
		HashKey:     res["hash_key"],
		HashKeyType: res["hash_key_type"],
		BillingMode: res["billing_mode"],
	}

	s.mu.Lock()
	s.schemas[table] = sc
	s.mu.Unlock()

	return sc, nil
}

func tablesKey() string {
	return "tables"
}

func schemaKey(table string) string {
	return table + ":schema"
}

func itemKey(table, id string) string {
	return table + ":item:" + id
}

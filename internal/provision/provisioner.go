// Package provision creates the durable dependencies of the service: the
// image bucket, the task table, the event topic, the event queue and the
// subscription linking them. Every step is an ensure-exists operation, so
// Ensure can be re-run after a partial failure.
package provision

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/you-humble/tasksync/internal/domain"
	"github.com/you-humble/tasksync/internal/infra/fanout"
	"github.com/you-humble/tasksync/internal/metrics"
)

type BucketStore interface {
	ListBuckets(ctx context.Context) ([]string, error)
	CreateBucket(ctx context.Context, bucket string) error
}

type TableStore interface {
	ListTables(ctx context.Context) ([]string, error)
	CreateTable(ctx context.Context, table string, schema domain.KeySchema) error
}

type Fanout interface {
	CreateTopic(ctx context.Context, name string) (string, error)
	CreateQueue(ctx context.Context, name string) (string, error)
	QueueARN(ctx context.Context, queueURL string) (string, error)
	Subscribe(ctx context.Context, topicARN, protocol, endpointARN string) (string, error)
}

type Names struct {
	Bucket string
	Table  string
	Topic  string
	Queue  string
}

// TaskTableSchema is a single string hash key "id" with on-demand capacity.
var TaskTableSchema = domain.KeySchema{
	HashKey:     domain.FieldID,
	HashKeyType: domain.AttributeTypeString,
	BillingMode: domain.BillingPayPerRequest,
}

type Provisioner struct {
	names   Names
	buckets BucketStore
	tables  TableStore
	fanout  Fanout
}

func New(names Names, buckets BucketStore, tables TableStore, fo Fanout) *Provisioner {
	return &Provisioner{
		names:   names,
		buckets: buckets,
		tables:  tables,
		fanout:  fo,
	}
}

// Ensure runs the steps in order and stops at the first failure. Nothing
// created before the failure is rolled back. The returned Resources holds
// whatever was resolved up to that point.
func (p *Provisioner) Ensure(ctx context.Context) (domain.Resources, error) {
	res := domain.Resources{}

	if err := p.ensureBucket(ctx); err != nil {
		return res, p.fail("bucket", err)
	}
	res.Bucket = p.names.Bucket

	if err := p.ensureTable(ctx); err != nil {
		return res, p.fail("table", err)
	}
	res.Table = p.names.Table

	topicARN, err := p.fanout.CreateTopic(ctx, p.names.Topic)
	if err != nil {
		return res, p.fail("topic", err)
	}
	res.TopicARN = topicARN
	p.ok("topic")
	slog.Info("Topic ready", slog.String("topic_arn", topicARN))

	queueURL, err := p.fanout.CreateQueue(ctx, p.names.Queue)
	if err != nil {
		return res, p.fail("queue", err)
	}
	res.QueueURL = queueURL

	queueARN, err := p.fanout.QueueARN(ctx, queueURL)
	if err != nil {
		return res, p.fail("queue", err)
	}
	res.QueueARN = queueARN
	p.ok("queue")
	slog.Info("Queue ready",
		slog.String("queue_url", queueURL),
		slog.String("queue_arn", queueARN),
	)

	subARN, err := p.fanout.Subscribe(ctx, topicARN, fanout.ProtocolQueue, queueARN)
	if err != nil {
		return res, p.fail("subscription", err)
	}
	res.SubscriptionARN = subARN
	p.ok("subscription")
	slog.Info("Subscribed queue to topic", slog.String("subscription_arn", subARN))

	slog.Info("Bootstrap completed")
	return res, nil
}

func (p *Provisioner) ensureBucket(ctx context.Context) error {
	buckets, err := p.buckets.ListBuckets(ctx)
	if err != nil {
		return err
	}

	if slices.Contains(buckets, p.names.Bucket) {
		p.exists("bucket")
		slog.Info("Bucket exists", slog.String("bucket", p.names.Bucket))
		return nil
	}

	if err := p.buckets.CreateBucket(ctx, p.names.Bucket); err != nil {
		if errors.Is(err, domain.ErrBucketExists) {
			p.exists("bucket")
			slog.Info("Bucket exists", slog.String("bucket", p.names.Bucket))
			return nil
		}
		return err
	}
	p.ok("bucket")
	slog.Info("Created bucket", slog.String("bucket", p.names.Bucket))

	return nil
}

func (p *Provisioner) ensureTable(ctx context.Context) error {
	tables, err := p.tables.ListTables(ctx)
	if err != nil {
		return err
	}

	if slices.Contains(tables, p.names.Table) {
		p.exists("table")
		slog.Info("Table exists", slog.String("table", p.names.Table))
		return nil
	}

	if err := p.tables.CreateTable(ctx, p.names.Table, TaskTableSchema); err != nil {
		if errors.Is(err, domain.ErrTableExists) {
			p.exists("table")
			slog.Info("Table exists", slog.String("table", p.names.Table))
			return nil
		}
		return err
	}
	p.ok("table")
	slog.Info("Created table", slog.String("table", p.names.Table))

	return nil
}

func (p *Provisioner) ok(resource string) {
	metrics.ProvisionStepsTotal.WithLabelValues(resource, metrics.ResultOK).Inc()
}

func (p *Provisioner) exists(resource string) {
	metrics.ProvisionStepsTotal.WithLabelValues(resource, "exists").Inc()
}

func (p *Provisioner) fail(resource string, err error) error {
	metrics.ProvisionStepsTotal.WithLabelValues(resource, metrics.ResultError).Inc()
	slog.Error("Bootstrap error",
		slog.String("resource", resource),
		slog.String("error", err.Error()),
	)
	return domain.Upstream("ensure "+resource, err)
}

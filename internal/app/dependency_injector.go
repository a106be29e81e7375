package app

import (
	"context"
	"log"
	"log/slog"
	"os"

	mio "github.com/you-humble/tasksync/core/libs/minio"
	natsq "github.com/you-humble/tasksync/core/libs/nats"
	rediscli "github.com/you-humble/tasksync/core/libs/redis"
	"github.com/you-humble/tasksync/internal/consumer"
	"github.com/you-humble/tasksync/internal/infra/config"
	"github.com/you-humble/tasksync/internal/infra/fanout"
	blobstore "github.com/you-humble/tasksync/internal/infra/store/blob"
	itemstore "github.com/you-humble/tasksync/internal/infra/store/item"
	"github.com/you-humble/tasksync/internal/provision"
	"github.com/you-humble/tasksync/internal/transport"
	"github.com/you-humble/tasksync/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/minio/minio-go/v7"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	cfgPath         = "./configs/local.yaml"
	consumerWorkers = 2
)

type Router interface {
	MountRoutes(chi.Router) chi.Router
}

type Consumer interface {
	Run(ctx context.Context) error
	Stop(ctx context.Context)
}

type itemStore interface {
	usecase.ItemStore
	provision.TableStore
}

type blobStore interface {
	usecase.BlobStore
	provision.BucketStore
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis    *redis.Client
	s3       *minio.Client
	natsConn *nats.Conn
	js       nats.JetStreamContext

	itemStore itemStore
	blobStore blobStore
	fanout    provision.Fanout
	events    usecase.EventPublisher

	images *usecase.ImageManager
	tasks  *usecase.TaskStore

	handler transport.Handler
	router  Router

	provisioner *provision.Provisioner
	consumer    Consumer
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(config.Path(cfgPath))
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		var level slog.Level
		if err := level.UnmarshalText([]byte(di.Config().LogLevel)); err != nil {
			level = slog.LevelInfo
		}

		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("RedisClient: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) S3Client(ctx context.Context) *minio.Client {
	if di.s3 == nil {
		cfg := di.Config().AWS
		client, err := mio.NewClient(ctx, mio.Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Region:          cfg.Region,
		})
		if err != nil {
			log.Fatalf("S3Client: %+v", err)
		}

		di.s3 = client
		di.Logger().Info("connected to S3",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("region", cfg.Region),
		)
	}
	return di.s3
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.ClientName,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
		di.Logger().Info("connected to NATS", slog.String("url", cfg.URL))
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		js, err := natsq.NewJetStream(di.NATSConn(ctx))
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) ItemStore(ctx context.Context) itemStore {
	if di.itemStore == nil {
		di.itemStore = itemstore.NewRedisItemStore(di.RedisClient(ctx))
	}
	return di.itemStore
}

func (di *dependencyInjector) BlobStore(ctx context.Context) blobStore {
	if di.blobStore == nil {
		di.blobStore = blobstore.NewMinIOStore(di.S3Client(ctx), di.Config().AWS.Region)
	}
	return di.blobStore
}

func (di *dependencyInjector) Fanout(ctx context.Context) provision.Fanout {
	if di.fanout == nil {
		di.fanout = fanout.NewJetStreamFanout(di.JetStream(ctx), di.Config().NATS.URL)
	}
	return di.fanout
}

func (di *dependencyInjector) EventPublisher(ctx context.Context) usecase.EventPublisher {
	if di.events == nil {
		di.events = fanout.NewPublisher(di.JetStream(ctx), di.Config().AWS.TopicARN)
	}
	return di.events
}

func (di *dependencyInjector) ImageManager(ctx context.Context) *usecase.ImageManager {
	if di.images == nil {
		di.images = usecase.NewImageManager(di.Config().AWS.Bucket, di.BlobStore(ctx))
	}
	return di.images
}

func (di *dependencyInjector) TaskStore(ctx context.Context) *usecase.TaskStore {
	if di.tasks == nil {
		cfg := di.Config()
		di.tasks = usecase.NewTaskStore(
			cfg.AWS.Table,
			di.ItemStore(ctx),
			di.ImageManager(ctx),
			usecase.WithEvents(di.EventPublisher(ctx)),
			usecase.WithReadThrough(cfg.ReadThrough),
		)
		di.Logger().Info("task store ready",
			slog.String("table", cfg.AWS.Table),
			slog.Bool("read_through", cfg.ReadThrough),
		)
	}
	return di.tasks
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(
			di.Config().MaxBodyMb,
			di.TaskStore(ctx),
			di.ImageManager(ctx),
		)
	}

	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx))
	}

	return di.router
}

func (di *dependencyInjector) Provisioner(ctx context.Context) *provision.Provisioner {
	if di.provisioner == nil {
		cfg := di.Config().AWS
		di.provisioner = provision.New(
			provision.Names{
				Bucket: cfg.Bucket,
				Table:  cfg.Table,
				Topic:  cfg.TopicName,
				Queue:  cfg.QueueName,
			},
			di.BlobStore(ctx),
			di.ItemStore(ctx),
			di.Fanout(ctx),
		)
	}
	return di.provisioner
}

func (di *dependencyInjector) Consumer(ctx context.Context) Consumer {
	if di.consumer == nil {
		cfg := di.Config()
		di.consumer = consumer.New(
			di.JetStream(ctx),
			cfg.AWS.QueueName,
			cfg.NATS.Consumer,
			consumerWorkers,
			consumer.LogEvent,
		)
	}
	return di.consumer
}

// Close releases the clients that were opened.
func (di *dependencyInjector) Close() {
	if di.natsConn != nil {
		if err := di.natsConn.Drain(); err != nil {
			slog.Warn("NATS drain", slog.String("error", err.Error()))
		}
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("redis close", slog.String("error", err.Error()))
		}
	}
}

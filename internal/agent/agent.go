package agent

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	flowkit "github.com/linkup-social/flowkit"
	"github.com/linkup-social/flowkit/internal/config"
	"github.com/linkup-social/flowkit/internal/content"
	"github.com/linkup-social/flowkit/internal/logger"
	"github.com/linkup-social/flowkit/internal/notify"
	"github.com/linkup-social/flowkit/pkg/worker"
	"github.com/linkup-social/flowkit/rest"
	"github.com/linkup-social/flowkit/workflows"
)

// Agent assembles the engine, workflows, worker pool and HTTP server into
// one runnable process.
type Agent struct {
	Config config.Config

	engine     flowkit.Engine
	metrics    *flowkit.BasicMetrics
	store      workflows.ContentStore
	notifier   workflows.Notifier
	pool       *worker.Pool
	httpServer *rest.Server

	sqlDB       *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client

	shutdown     bool
	shutdownLock sync.Mutex
}

func New(cfg config.Config) (*Agent, error) {
	a := &Agent{
		Config: cfg,
	}
	setup := []func() error{
		a.setupEngine,
		a.setupCollaborators,
		a.setupWorkflows,
		a.setupWorkerPool,
		a.setupHTTPServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupEngine() error {
	a.metrics = &flowkit.BasicMetrics{}
	opts := flowkit.EngineOptions{
		Observer: flowkit.NewCompositeObserver(
			flowkit.NewLoggingObserver(logger.L()),
			a.metrics,
		),
		LeaseTTL: a.Config.LeaseTTL,
	}

	switch a.Config.StorageType {
	case config.StorageSQLite:
		db, err := sql.Open("sqlite", a.Config.SQLitePath)
		if err != nil {
			return err
		}
		eng, err := flowkit.NewSQLiteEngine(db, opts)
		if err != nil {
			db.Close()
			return err
		}
		a.sqlDB = db
		a.engine = eng
	case config.StorageRedis:
		a.redisClient = redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		a.engine = flowkit.NewRedisEngine(a.redisClient, a.Config.Namespace, opts)
	default:
		a.engine = flowkit.NewInMemoryEngine(opts)
	}
	logger.Info("engine ready", zap.String("storage", string(a.Config.StorageType)))
	return nil
}

func (a *Agent) setupCollaborators() error {
	if a.Config.MongoURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.Config.MongoURL))
		if err != nil {
			return err
		}
		a.mongoClient = client
		a.store = content.NewMongoContentStore(client, a.Config.MongoDB)
	} else {
		logger.Warn("no mongo url configured, using in-memory content store")
		a.store = content.NewInMemoryContentStore()
	}

	if a.Config.SMTP.Host != "" {
		a.notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     a.Config.SMTP.Host,
			Port:     a.Config.SMTP.Port,
			Username: a.Config.SMTP.Username,
			Password: a.Config.SMTP.Password,
			From:     a.Config.SMTP.From,
		})
	} else {
		logger.Warn("no smtp host configured, notifications will be logged only")
		a.notifier = notify.LogNotifier{}
	}
	return nil
}

func (a *Agent) setupWorkflows() error {
	cfg := workflows.DefaultConfig()
	if a.Config.StoryTTL > 0 {
		cfg.StoryTTL = a.Config.StoryTTL
	}
	if a.Config.ReminderDelay > 0 {
		cfg.ReminderDelay = a.Config.ReminderDelay
	}
	if a.Config.DigestWindow > 0 {
		cfg.DigestWindow = a.Config.DigestWindow
	}
	return workflows.RegisterAll(a.engine, a.store, a.notifier, cfg)
}

func (a *Agent) setupWorkerPool() error {
	a.pool = worker.NewPool(a.engine, worker.Config{
		Concurrency:  a.Config.Concurrency,
		PollInterval: a.Config.PollInterval,
		Retention:    a.Config.Retention,
	})
	return nil
}

func (a *Agent) setupHTTPServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HTTPPort, a.engine)
	return err
}

func (a *Agent) Start() error {
	if err := a.pool.Start(); err != nil {
		return err
	}
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server exited", zap.Error(err))
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	a.pool.Stop()
	if err := a.httpServer.Stop(); err != nil {
		return err
	}

	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
	if a.redisClient != nil {
		a.redisClient.Close()
	}
	if a.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.mongoClient.Disconnect(ctx)
	}

	snap := a.metrics.Snapshot()
	logger.Info("final run counts",
		zap.Int64("created", snap.RunsCreated),
		zap.Int64("succeeded", snap.RunsSucceeded),
		zap.Int64("failed", snap.RunsFailed),
		zap.Int64("cancelled", snap.RunsCancelled))
	logger.Sync()
	return nil
}

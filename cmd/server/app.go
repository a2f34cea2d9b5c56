package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"registrar/internal/approval"
	crhandler "registrar/internal/changerequest/handler"
	crmetrics "registrar/internal/changerequest/metrics"
	crservice "registrar/internal/changerequest/service"
	crstore "registrar/internal/changerequest/store"
	"registrar/internal/fields"
	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/platform/config"
	"registrar/internal/platform/lock"
	"registrar/internal/platform/metrics"
	"registrar/internal/platform/postgres"
	redisclient "registrar/internal/platform/redis"
	subjectstore "registrar/internal/subject/store"
	audit "registrar/pkg/platform/audit"
	"registrar/pkg/platform/audit/publisher"
	auditkafka "registrar/pkg/platform/audit/store/kafka"
	auditmemory "registrar/pkg/platform/audit/store/memory"
	auditpostgres "registrar/pkg/platform/audit/store/postgres"
	"registrar/pkg/platform/tx"
)

// app holds the wired components for one process.
type app struct {
	cfg      config.Server
	log      *slog.Logger
	registry *fields.Registry
	db       *sql.DB
	redis    *redisclient.Client
	sink     *auditkafka.Sink
	audit    *publisher.Publisher
	metrics  *metrics.HTTP
	jwt      *jwttoken.JWTService
	subjects subjectStore
	handler  *crhandler.Handler
}

type subjectStore interface {
	approval.Records
	crservice.SubjectReader
	subjectstore.Upserter
	Count(ctx context.Context) (int, error)
}

func newApp(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		registry: fields.Default(),
		jwt:      jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var (
		requests   crservice.Store
		auditStore audit.Store
		txRunner   approval.TxRunner
	)
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		a.subjects = subjectstore.NewPostgres(db)
		requests = crstore.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		txRunner = tx.NewRunner(db, cfg.Database.TxTimeout)
	default:
		a.subjects = subjectstore.NewInMemory()
		requests = crstore.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := auditkafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return nil, err
		}
		a.sink = sink
		if err := sink.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replicas); err != nil {
			return nil, err
		}
		auditStore = publisher.Fanout{auditStore, sink}
	}
	a.audit = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
	)

	var locker lock.Locker = lock.NewSharded(cfg.Lock.Timeout)
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.redis = rc
		locker = lock.NewRedis(rc.Client, lock.WithTTL(cfg.Lock.TTL), lock.WithWaitTimeout(cfg.Lock.Timeout))
	}

	if cfg.Storage.SeedFile != "" {
		if err := a.seed(ctx, cfg.Storage.SeedFile); err != nil {
			return nil, err
		}
	}

	crm := crmetrics.New(reg)
	svc := crservice.New(requests, a.subjects, a.registry,
		crservice.WithLogger(log),
		crservice.WithAuditPublisher(a.audit),
		crservice.WithMetrics(crm),
	)
	if pending, err := svc.ListPending(ctx); err == nil {
		crm.SetPending(len(pending))
	}

	engineOpts := []approval.Option{
		approval.WithLogger(log),
		approval.WithAuditPublisher(a.audit),
		approval.WithMetrics(crm),
	}
	if txRunner != nil {
		engineOpts = append(engineOpts, approval.WithTxRunner(txRunner))
	}
	engine := approval.New(svc, a.subjects, a.registry, locker, engineOpts...)

	a.handler = crhandler.New(svc, engine, a.registry, log)
	ok = true
	return a, nil
}

func (a *app) seed(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	records, err := subjectstore.LoadSeed(ctx, f, a.registry)
	if err != nil {
		return err
	}
	if err := subjectstore.Seed(ctx, a.subjects, records); err != nil {
		return err
	}
	a.log.InfoContext(ctx, "seeded subjects", "file", path, "count", len(records))
	return nil
}

// health reports the first failing dependency.
func (a *app) health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if a.sink != nil {
		if err := a.sink.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

// close drains audit before closing the stores it writes to.
func (a *app) close() {
	var errs []error
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error("shutdown cleanup failed", "error", err)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/HSPiira/timeline-sub001/internal/config"
	"github.com/HSPiira/timeline-sub001/internal/db"
	"github.com/HSPiira/timeline-sub001/internal/queue"
	"github.com/HSPiira/timeline-sub001/internal/verify"
	"github.com/HSPiira/timeline-sub001/internal/worker"
	"github.com/HSPiira/timeline-sub001/pkg/hashchain"
	"github.com/HSPiira/timeline-sub001/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.App.Env)
	defer zlog.Sync()

	// 1. Init DB
	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	// 2. Init hash engine
	engine, err := hashchain.NewEngine(hashchain.Algorithm(cfg.Hash.Algorithm))
	if err != nil {
		log.Fatalf("failed to init hash engine: %v", err)
	}
	verifier := verify.New(engine, database.Events)

	// 3. Init Queue
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// 4. Init Processors
	auditProcessor := worker.NewChainAuditProcessor(verifier, zlog)
	subjectProcessor := worker.NewSubjectAuditProcessor(verifier, zlog)

	// 5. Start Scheduler
	scheduler := worker.NewAuditScheduler(
		database.Events, queueClient, zlog,
		cfg.Worker.AuditInterval, cfg.Worker.AuditEventLimit,
	)
	go scheduler.Run(ctx)

	// 6. Start Worker Server
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeChainAudit, auditProcessor.ProcessTask)
	mux.HandleFunc(queue.TypeSubjectAudit, subjectProcessor.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down worker...")
	srv.Shutdown()
}

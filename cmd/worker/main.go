// Package main - точка входа фоновых процессов (Worker) Dojang Exam Hub.
//
// Worker отвечает за периодические задачи:
// - Реконсиляция выпусков: повторный прогон каскада повышения пояса
//   для записей, застрявших в pending после сбоя
//
// Каскад идемпотентен, поэтому повторные прогоны безопасны: уже
// применённые повышения пропускаются.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dojang-hub/dojang-exam-hub/config"

	// Application layer
	"github.com/dojang-hub/dojang-exam-hub/internal/application/saga"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/messaging"
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/persistence/postgres"
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/persistence/redis"
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/scheduler"
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/scheduler/jobs"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	_ = godotenv.Load()

	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Dojang Exam Hub Worker",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// Проверяем соединение
	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ (Worker также должен иметь актуальную схему)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// Redis-шина транслирует события в API-процесс; без Redis события
	// остаются локальными.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")

	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log
	localBusConfig.AsyncMode = true

	var eventBus shared.EventPublisher
	var closeBus func()

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, using local event bus", "error", err)
		} else {
			redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
				Client:         redis.NewEventBusClient(redisCache),
				ChannelName:    redis.PubSubChannel("events"),
				LocalBusConfig: localBusConfig,
				Logger:         log,
			})
			if err != nil {
				log.Warn("failed to start Redis event bus, using local event bus", "error", err)
				_ = redisCache.Close()
			} else {
				eventBus = redisBus
				closeBus = func() {
					_ = redisBus.Close()
					_ = redisCache.Close()
				}
				log.Info("Redis event bus established")
			}
		}
	}

	if eventBus == nil {
		localBus := messaging.NewInMemoryEventBus(localBusConfig)
		eventBus = localBus
		closeBus = func() { _ = localBus.Close() }
	}
	defer func() {
		log.Info("closing event bus...")
		closeBus()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ И САГИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	studentRepo := postgres.NewStudentRepository(dbConn)
	examRepo := postgres.NewExamRepository(dbConn)
	gradeRepo := postgres.NewGradeRepository(dbConn)
	graduationRepo := postgres.NewGraduationRepository(dbConn)
	uow := postgres.NewUnitOfWork(dbConn)

	graduationProcessor := saga.NewGraduationProcessor(
		examRepo, gradeRepo, graduationRepo, studentRepo, uow, eventBus)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled by configuration, worker has nothing to do")
		return nil
	}

	log.Info("initializing scheduler...")
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedConfig)

	if cfg.Features.IsEnabled(config.FeatureGraduationReconciliation, nil) {
		reconcileJob := jobs.NewReconcileGraduationsJob(
			graduationProcessor,
			jobs.ReconcileGraduationsConfig{
				ApprovedBy: shared.StaffID(cfg.Scheduler.ReconcileApprover),
				BatchLimit: cfg.Scheduler.ReconcileBatchLimit,
				Timeout:    cfg.Scheduler.JobTimeout,
			},
			log,
		)

		if err := sched.Register(reconcileJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval)); err != nil {
			return fmt.Errorf("failed to register reconciliation job: %w", err)
		}
	} else {
		log.Warn("graduation reconciliation disabled by feature flag")
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Dojang Exam Hub Worker is running",
		"reconcile_interval", cfg.Scheduler.ReconcileInterval.String(),
		"timezone", cfg.App.Timezone,
	)

	// Ожидаем сигнал завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	// Начинаем graceful shutdown
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
	}

	// Event bus и база данных закроются через defer

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	if cfg.IsProduction() {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

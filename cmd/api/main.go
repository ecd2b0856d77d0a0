// Package main - точка входа REST API приложения Dojang Exam Hub.
//
// Хаб ведёт полный цикл аттестации на пояс: планирование экзаменов,
// запись кандидатов с проверкой допуска, оплаты, выставление оценок
// и выпуск с каскадным повышением пояса.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries/Sagas)
// - Infrastructure: реализация репозиториев, кеши, шина событий
// - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dojang-hub/dojang-exam-hub/config"

	// Application layer
	"github.com/dojang-hub/dojang-exam-hub/internal/application/command"
	"github.com/dojang-hub/dojang-exam-hub/internal/application/eventhandler"
	"github.com/dojang-hub/dojang-exam-hub/internal/application/query"
	"github.com/dojang-hub/dojang-exam-hub/internal/application/saga"

	// Domain layer
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/messaging"
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/persistence/postgres"
	"github.com/dojang-hub/dojang-exam-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/dojang-hub/dojang-exam-hub/internal/interface/http"
	"github.com/dojang-hub/dojang-exam-hub/internal/interface/http/handlers"

	// Packages
	"github.com/dojang-hub/dojang-exam-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// .env удобен в разработке; в production переменные приходят из окружения
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
	log.Info("starting Dojang Exam Hub API",
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
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", "error", err)
	} else {
		appliedCount := 0
		for _, m := range status {
			if m.IsApplied {
				appliedCount++
			}
		}
		log.Info("migrations completed", "applied", appliedCount, "total", len(status))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var eligibilityCache *redis.EligibilityCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, eligibility caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			if cfg.Features.IsEnabled(config.FeatureEnrollEligibilityCache, nil) {
				eligibilityCache = redis.NewEligibilityCache(redisCache)
			}
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	studentRepo := postgres.NewStudentRepository(dbConn)
	attendanceLog := postgres.NewAttendanceRepository(dbConn)
	paymentLedger := postgres.NewPaymentRepository(dbConn)
	examRepo := postgres.NewExamRepository(dbConn)
	gradeRepo := postgres.NewGradeRepository(dbConn)
	graduationRepo := postgres.NewGraduationRepository(dbConn)
	uow := postgres.NewUnitOfWork(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBusConfig.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER (Commands, Queries, Sagas)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	evaluator := query.NewEligibilityEvaluator(studentRepo, attendanceLog, paymentLedger)

	// Write side
	createExamCmd := command.NewCreateExamHandler(examRepo, eventBus)
	manageExamCmd := command.NewManageExamHandler(examRepo, eventBus)
	enrollCmd := command.NewEnrollCandidateHandler(examRepo, studentRepo, evaluator, eventBus)
	unenrollCmd := command.NewUnenrollCandidateHandler(examRepo, gradeRepo, eventBus)
	recordPaymentCmd := command.NewRecordPaymentHandler(examRepo, eventBus)
	finalizeGradeCmd := command.NewFinalizeGradeHandler(examRepo, gradeRepo, eventBus)
	reviewGradeCmd := command.NewReviewGradeHandler(gradeRepo)
	approveCmd := command.NewApproveGraduationHandler(graduationRepo, studentRepo, eventBus)
	certifyCmd := command.NewCertifyGraduationHandler(graduationRepo, eventBus)
	cancelCmd := command.NewCancelGraduationHandler(graduationRepo, eventBus)

	// Read side
	listExamsQuery := query.NewListExamsHandler(examRepo)
	rosterQuery := query.NewGetExamRosterHandler(examRepo, studentRepo, gradeRepo)
	gradeQuery := query.NewGetGradeHandler(gradeRepo)
	graduationsQuery := query.NewGetStudentGraduationsHandler(graduationRepo)

	var eligibilityQuery *query.GetEligibilityHandler
	if eligibilityCache != nil {
		eligibilityQuery = query.NewGetEligibilityHandler(examRepo, evaluator, eligibilityCache)
	} else {
		eligibilityQuery = query.NewGetEligibilityHandler(examRepo, evaluator, nil)
	}

	// Batch graduation processing
	graduationProcessor := saga.NewGraduationProcessor(
		examRepo, gradeRepo, graduationRepo, studentRepo, uow, eventBus)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")

	// Обработчики подключаются через диспетчер: ретраи с backoff,
	// recovery и DLQ для событий, которые так и не обработались.
	dispatcher := messaging.NewDispatcher(eventBus, messaging.WithLogger(log))
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))

	if eligibilityCache != nil {
		beltPromoted := eventhandler.NewOnBeltPromotedHandler(eligibilityCache, log)
		if err := dispatcher.Register(shared.EventBeltPromoted, "eligibility-cache-invalidation", beltPromoted.Handle); err != nil {
			return fmt.Errorf("failed to register belt promotion handler: %w", err)
		}
	}
	cancelled := eventhandler.NewOnGraduationCancelledHandler(log)
	if err := dispatcher.Register(shared.EventGraduationCancelled, "cancellation-audit", cancelled.Handle); err != nil {
		return fmt.Errorf("failed to register cancellation handler: %w", err)
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	defer func() { _ = dispatcher.Stop() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("redis", handlers.NewCacheCheck(redisCache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeys = cfg.HTTP.APIKeys

	httpDeps := httpserver.Dependencies{
		CreateExamHandler:        createExamCmd,
		ManageExamHandler:        manageExamCmd,
		EnrollCandidateHandler:   enrollCmd,
		UnenrollCandidateHandler: unenrollCmd,
		RecordPaymentHandler:     recordPaymentCmd,
		FinalizeGradeHandler:     finalizeGradeCmd,
		ReviewGradeHandler:       reviewGradeCmd,
		ApproveGraduationHandler: approveCmd,
		CertifyGraduationHandler: certifyCmd,
		CancelGraduationHandler:  cancelCmd,

		ListExamsHandler:             listExamsQuery,
		GetExamRosterHandler:         rosterQuery,
		GetEligibilityHandler:        eligibilityQuery,
		GetGradeHandler:              gradeQuery,
		GetStudentGraduationsHandler: graduationsQuery,

		GraduationProcessor: graduationProcessor,

		DefaultEnrollPolicy: defaultEnrollPolicy(cfg),
		BatchManualApproval: !cfg.Features.IsEnabled(config.FeatureGraduationAutoApprove, nil),

		Logger: logger.New(logger.Options{
			Output: os.Stdout,
			Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		}),
		HealthChecker: healthChecker,
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)

	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("Dojang Exam Hub API is running", "http_address", httpServer.Address())

	// Ожидаем сигнал завершения или ошибку
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	// Начинаем graceful shutdown
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
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

// defaultEnrollPolicy выбирает политику зачисления по фич-флагу:
// при включённом enroll.strict_policy непригодный студент не зачисляется.
func defaultEnrollPolicy(cfg *config.Config) command.EnrollmentPolicy {
	if cfg.Features.IsEnabled(config.FeatureEnrollStrictPolicy, nil) {
		return command.PolicyStrict
	}
	return command.PolicyAdvisory
}

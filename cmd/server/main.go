package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/onboarding-workflow/internal/application/activity"
	"github.com/garyjia/onboarding-workflow/internal/application/dispatcher"
	"github.com/garyjia/onboarding-workflow/internal/application/onboarding"
	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/application/runner"
	"github.com/garyjia/onboarding-workflow/internal/application/service"
	"github.com/garyjia/onboarding-workflow/internal/config"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/external/openai"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/mail"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/persistence/sqlite"
	httpapi "github.com/garyjia/onboarding-workflow/internal/interfaces/http"
	"github.com/garyjia/onboarding-workflow/internal/interfaces/websocket"
	"github.com/garyjia/onboarding-workflow/internal/report"
	"github.com/garyjia/onboarding-workflow/internal/worker"
	"github.com/garyjia/onboarding-workflow/pkg/database"
	"github.com/garyjia/onboarding-workflow/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file (empty for defaults)")
	envFile := flag.String("env", ".env", "optional dotenv file with credentials")
	flag.Parse()

	// A missing .env is fine; the environment may already carry the values
	if err := gotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting onboarding workflow server",
		zap.String("task_queue", cfg.Workflow.TaskQueue),
		zap.String("mail_provider", cfg.Mail.Provider),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.NewMigrator(db, logger).RunMigrations(sqlite.Migrations, sqlite.MigrationsDir); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	txManager := sqlite.NewDB(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	historyRepo := repository.NewHistoryRepository(db.DB, logger)
	taskRepo := repository.NewTaskRepository(db.DB, logger)
	messageRepo := repository.NewMessageRepository(db.DB, logger)

	kv := utils.NewKVLogger(logger)

	events := dispatcher.NewDispatcher(
		dispatcher.WithLogger(kv.Named("events")),
		dispatcher.WithRetry(cfg.Events.RetryAttempts, cfg.Events.RetryInterval),
		dispatcher.WithHandlerTimeout(cfg.Events.HandlerTimeout),
	)

	composer, err := newComposer(cfg, logger)
	if err != nil {
		return err
	}
	mailer := newMailer(cfg, logger)

	tasks := service.NewTaskService(taskRepo, txManager, kv.Named("tasks"))
	activities := activity.New(mailer, composer, tasks, logger,
		activity.WithMessageRepository(messageRepo))

	onboardingRunner := runner.New(
		onboarding.NewStateMachine(activities, logger),
		instanceRepo,
		historyRepo,
		runner.Config{
			TaskQueue:       cfg.Workflow.TaskQueue,
			ActivityTimeout: cfg.Workflow.ActivityTimeout,
			Retry: runner.RetryPolicy{
				MaxAttempts:     cfg.Workflow.Retry.MaxAttempts,
				InitialInterval: cfg.Workflow.Retry.InitialInterval,
				MaxInterval:     cfg.Workflow.Retry.MaxInterval,
			},
		},
		logger,
		runner.WithPublisher(events),
		runner.WithTransactionManager(txManager),
	)

	notifications := service.NewNotificationService(instanceRepo, messageRepo, composer, mailer, cfg.Mail.HREmail, kv.Named("notifications"))

	// The notifier subscribes before the runner resumes, so escalations
	// produced by recovered instances are not missed
	workers := worker.NewManager(logger)
	workers.Register(worker.NewEscalationNotifier(events, notifications.HandleEscalated, logger))
	workers.Register(worker.NewRunnerWorker(onboardingRunner, logger))
	if cfg.Lark.FormApprovalCode != "" {
		workers.Register(newFormListener(cfg, onboardingRunner, logger))
	}

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, onboardingRunner, kv.Named("http"),
		httpapi.WithTasks(tasks),
		httpapi.WithMessages(messageRepo),
		httpapi.WithReport(report.NewExporter(onboardingRunner, logger)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	err = g.Wait()
	logger.Info("Shutting down")

	workers.StopAll()
	if cerr := events.Close(); cerr != nil {
		logger.Error("Failed to close event dispatcher", zap.Error(cerr))
	}

	return err
}

func newComposer(cfg *config.Config, logger *zap.Logger) (port.MessageComposer, error) {
	templates, err := mail.LoadTemplates(cfg.Mail.TemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}
	drafts, err := mail.NewTemplateComposer(templates)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail templates: %w", err)
	}

	if cfg.OpenAI.APIKey == "" {
		return drafts, nil
	}

	logger.Info("Polishing onboarding emails with OpenAI", zap.String("model", cfg.OpenAI.Model))
	return openai.NewComposer(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
	}, drafts, logger), nil
}

func newMailer(cfg *config.Config, logger *zap.Logger) port.Mailer {
	if cfg.Mail.Provider != config.MailProviderLark {
		return mail.NewLogMailer(logger)
	}

	return lark.NewMailer(newLarkClient(cfg, logger), logger)
}

func newLarkClient(cfg *config.Config, logger *zap.Logger) *lark.SDKClient {
	return lark.NewSDKClient(lark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		BaseURL:   cfg.Lark.BaseURL,
	}, logger)
}

func newFormListener(cfg *config.Config, r *runner.Runner, logger *zap.Logger) *websocket.FormListener {
	return websocket.NewFormListener(websocket.FormListenerConfig{
		AppID:      cfg.Lark.AppID,
		AppSecret:  cfg.Lark.AppSecret,
		FormCode:   cfg.Lark.FormApprovalCode,
		DoneStatus: cfg.Lark.FormDoneStatus,
	}, lark.NewFormAPI(newLarkClient(cfg, logger), logger), r, func(employeeID string) string {
		return runner.DefaultInstanceID(entity.Employee{ID: employeeID})
	}, logger)
}

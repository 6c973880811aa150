package main

import (
	"context"
	"fmt"
	"log"

	"tuition-ledger/internal/bot"
	"tuition-ledger/internal/models/config"
	"tuition-ledger/internal/repository"
	"tuition-ledger/internal/repository/memory"
	"tuition-ledger/internal/repository/txmanager"
	"tuition-ledger/internal/service"
	packages_service "tuition-ledger/internal/service/packages"
	"tuition-ledger/internal/service/settlement"
	"tuition-ledger/internal/web"
	database "tuition-ledger/pkg"
	"tuition-ledger/pkg/logger"
	"tuition-ledger/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	// Загружаем конфигурацию
	if err := config.Load(); err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	cfg := config.AppConfig

	appLogger, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("❌ Ошибка создания логгера: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("🚀 Запуск", zap.String("environment", cfg.Environment), zap.String("storage", cfg.Storage.Driver))

	app := fx.New(
		fx.Supply(cfg, appLogger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		storageModule(cfg.Storage.Driver),
		fx.Provide(
			newSettlementService,
			packages_service.NewPackageService,
			validator.New,
			web.NewHandler,
			web.NewApp,
		),
		fx.Invoke(runHTTP, runBot),
	)
	app.Run()
}

type storage struct {
	fx.Out

	Repos repository.Repositories
	Tx    repository.TxManager
}

// storageModule выбирает хранилище по STORAGE_DRIVER
func storageModule(driver string) fx.Option {
	if driver == config.StorageMemory {
		return fx.Provide(func() storage {
			store := memory.NewStore()
			return storage{Repos: store.Repositories(), Tx: store}
		})
	}

	return fx.Options(
		fx.Provide(newPostgres),
		fx.Provide(func(db *sqlx.DB, l *zap.Logger) storage {
			return storage{
				Repos: txmanager.NewRepositories(db),
				Tx:    txmanager.NewTxManager(db, l),
			}
		}),
	)
}

func newPostgres(lc fx.Lifecycle, cfg *config.Config, l *zap.Logger) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.StartupTimeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database, l)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := database.Migrate(ctx, db, l); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка миграции: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

func newSettlementService(repos repository.Repositories, tx repository.TxManager, cfg *config.Config, l *zap.Logger) service.SettlementService {
	return settlement.NewOrchestrator(repos, tx, cfg.Settlement, l)
}

func runHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, app *fiber.App, cfg *config.Config, l *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				l.Info("🌐 HTTP сервер запущен", zap.String("port", cfg.HTTP.Port))
				if err := app.Listen(":" + cfg.HTTP.Port); err != nil {
					l.Error("❌ Ошибка HTTP сервера", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Info("🛑 Остановка HTTP сервера")
			return app.ShutdownWithContext(ctx)
		},
	})
}

// runBot запускает бота, только если задан BOT_TOKEN
func runBot(
	lc fx.Lifecycle,
	cfg *config.Config,
	settlementService service.SettlementService,
	packageService service.PackageService,
	l *zap.Logger,
) error {
	if !cfg.Bot.Enabled() {
		l.Info("🤖 BOT_TOKEN не задан, бот отключен")
		return nil
	}

	telegramBot, err := bot.NewBot(cfg.Bot, settlementService, packageService, l)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := telegramBot.Start(ctx); err != nil {
					l.Error("❌ Ошибка запуска бота", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return nil
}

package bot

import (
	"context"
	"fmt"
	"sync"

	"tuition-ledger/internal/models/config"
	"tuition-ledger/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"
)

// sender - часть BotAPI, которой пользуются обработчики
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api               *tgbotapi.BotAPI
	sender            sender
	cfg               config.BotConfig
	SettlementService service.SettlementService
	PackageService    service.PackageService
	logger            *zap.Logger

	userSessions map[int64]*UserSession // chatID -> session
	mu           sync.RWMutex
}

func NewBot(
	cfg config.BotConfig,
	settlementService service.SettlementService,
	packageService service.PackageService,
	logger *zap.Logger,
) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("BOT_TOKEN не установлен в конфигурации")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = cfg.Debug

	b := newBot(api, cfg, settlementService, packageService, logger)
	b.api = api

	b.logger.Info("🤖 Бот инициализирован",
		zap.String("username", api.Self.UserName),
		zap.Bool("debug", cfg.Debug),
		zap.Int64s("admins", cfg.AdminIDs),
	)
	return b, nil
}

func newBot(
	s sender,
	cfg config.BotConfig,
	settlementService service.SettlementService,
	packageService service.PackageService,
	logger *zap.Logger,
) *Bot {
	return &Bot{
		sender:            s,
		cfg:               cfg,
		SettlementService: settlementService,
		PackageService:    packageService,
		logger:            logger.Named("bot"),
		userSessions:      make(map[int64]*UserSession),
	}
}

// Start читает обновления до отмены ctx
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := b.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("🛑 Бот остановлен")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

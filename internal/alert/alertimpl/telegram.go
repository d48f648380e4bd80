package alertimpl

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/pkg/config"
	"github.com/orgball2608/video-distributor/pkg/formatter"
	"github.com/orgball2608/video-distributor/pkg/logger"
	"go.uber.org/fx"
)

type TelegramOpts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

// TelegramChannel delivers alerts to the configured operator chat, or to a
// broadcast channel when TELEGRAM_CHANNEL is set.
type TelegramChannel struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	channel string
	logger  logger.Logger
}

func NewTelegramChannel(opts TelegramOpts) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(opts.Config.Telegram.Token)
	if err != nil {
		opts.Logger.Error("Error creating telegram bot", "error", err)
		return nil, err
	}

	return &TelegramChannel{
		bot:     bot,
		chatID:  opts.Config.Telegram.User,
		channel: opts.Config.Telegram.Channel,
		logger:  opts.Logger,
	}, nil
}

var _ alert.Channel = (*TelegramChannel)(nil)

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(_ context.Context, severity alert.Severity, message string, alertContext map[string]string) error {
	text := formatter.FormatAlertMarkdownV2(severity.String(), message, alertContext)

	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	_, err := t.bot.Send(msg)
	return err
}

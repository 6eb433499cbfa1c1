// Package telegram связывает автомат диалогов с Telegram Bot API:
// принимает обновления long polling-ом и отправляет ответы.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/staffpoints/internal/bot"
	"github.com/mmeshcher/staffpoints/internal/service"
)

// Client обслуживает соединение с Telegram. Реализует service.Notifier.
type Client struct {
	api     *tgbotapi.BotAPI
	machine *bot.Machine
	logger  *zap.Logger
}

// New создаёт клиента и проверяет токен обращением к API.
func New(token string, machine *bot.Machine, logger *zap.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization: %w", err)
	}

	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return &Client{api: api, machine: machine, logger: logger}, nil
}

// Run принимает обновления до отмены контекста.
func (c *Client) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60

	updates := c.api.GetUpdatesChan(cfg)
	defer c.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			c.handleUpdate(ctx, update)
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var ev bot.Event

	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		ev = bot.Event{From: cb.From.ID, Kind: bot.EventButton, Text: cb.Data}
		// Снимаем "часики" на кнопке независимо от результата обработки.
		if _, err := c.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			c.logger.Warn("answer callback", zap.Error(err))
		}
	case update.Message != nil:
		ev = bot.Event{From: update.Message.Chat.ID, Kind: bot.EventText, Text: update.Message.Text}
	default:
		return
	}

	for _, res := range c.machine.Dispatch(ctx, ev) {
		if err := c.send(res); err != nil {
			c.logger.Error("send response", zap.Error(err), zap.Int64("chatID", res.ChatID))
		}
	}
}

func (c *Client) send(res bot.Response) error {
	msg := tgbotapi.NewMessage(res.ChatID, res.Text)

	switch {
	case len(res.Menu) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(res.Menu))
		for _, row := range res.Menu {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, buttons)
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.ResizeKeyboard = true
		msg.ReplyMarkup = keyboard

	case len(res.Inline) > 0:
		msg.ReplyMarkup = inlineKeyboard(res.Inline)
	}

	_, err := c.api.Send(msg)
	return err
}

func inlineKeyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

// Notify отправляет сообщение пользователю вне диалога: уведомления
// об изменении баланса и о новых заявках.
func (c *Client) Notify(_ context.Context, userID int64, text string, buttons ...service.Button) error {
	msg := tgbotapi.NewMessage(userID, text)

	if len(buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	_, err := c.api.Send(msg)
	return err
}

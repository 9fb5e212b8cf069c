// Package telegram runs the dialogue as a Telegram bot using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/trainbot/internal/dialogue"
	"github.com/ashureev/trainbot/internal/dispatch"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UserPrefix namespaces Telegram chats in the dialogue session registry.
const UserPrefix = "tg:"

const pollTimeout = 60

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Submitter queues an event for the dialogue. *dispatch.Dispatcher implements it.
type Submitter interface {
	Submit(ev dialogue.Event, to dispatch.Sender) error
}

// Bot bridges Telegram updates to the dispatcher and renders replies as
// reply keyboards.
type Bot struct {
	api       API
	submitter Submitter
}

// Connect authenticates with the Bot API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", api.Self.UserName)
	return api, nil
}

// New creates a Bot over api.
func New(api API, submitter Submitter) *Bot {
	return &Bot{api: api, submitter: submitter}
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	slog.Info("Telegram long polling started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Telegram long polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			if err := b.handleUpdate(upd); err != nil {
				if errors.Is(err, dispatch.ErrClosed) {
					return nil
				}
				slog.Warn("Failed to handle telegram update", "update_id", upd.UpdateID, "error", err)
			}
		}
	}
}

// eventFromMessage converts a text message to a dialogue event. ok is false
// for messages the dialogue ignores.
func eventFromMessage(msg *tgbotapi.Message) (dialogue.Event, bool) {
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return dialogue.Event{}, false
	}
	userID := UserPrefix + strconv.FormatInt(msg.Chat.ID, 10)
	if msg.IsCommand() {
		return dialogue.Event{UserID: userID, Kind: dialogue.KindCommand, Command: strings.ToLower(msg.Command())}, true
	}
	return dispatch.ParseText(userID, msg.Text), true
}

func (b *Bot) handleUpdate(upd tgbotapi.Update) error {
	ev, ok := eventFromMessage(upd.Message)
	if !ok {
		return nil
	}
	return b.submitter.Submit(ev, b)
}

// chatID extracts the Telegram chat id from a dialogue user id.
func chatID(userID string) (int64, error) {
	raw, ok := strings.CutPrefix(userID, UserPrefix)
	if !ok {
		return 0, fmt.Errorf("user %q is not a telegram chat", userID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chat id %q: %w", raw, err)
	}
	return id, nil
}

// render builds the outgoing message: one keyboard row of choice labels, or
// keyboard removal when the state accepts only free text.
func render(chat int64, reply dialogue.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chat, reply.Text)
	if len(reply.Choices) == 0 {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
		return msg
	}

	buttons := make([]tgbotapi.KeyboardButton, 0, len(reply.Choices))
	for _, c := range reply.Choices {
		buttons = append(buttons, tgbotapi.NewKeyboardButton(c.Label()))
	}
	kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(buttons...))
	kb.ResizeKeyboard = true
	msg.ReplyMarkup = kb
	return msg
}

// Send implements dispatch.Sender. The Bot API client has no per-call
// context, so ctx only short-circuits already-cancelled sends.
func (b *Bot) Send(ctx context.Context, userID string, reply dialogue.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := chatID(userID)
	if err != nil {
		return err
	}
	if _, err := b.api.Send(render(chat, reply)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

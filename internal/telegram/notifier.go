// Package telegram sends match notifications to users who linked a Telegram
// account.
package telegram

import (
	"context"

	"matchroom/backend/internal/localization"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"
	"matchroom/backend/internal/textutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewBot authorizes against the Bot API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	logger.Info("Authorized on Telegram account", "username", bot.Self.UserName)
	return bot, nil
}

type Notifier struct {
	bot       Sender
	users     storage.Directory
	localizer *localization.Localizer
	lang      string
}

func NewNotifier(bot Sender, users storage.Directory, localizer *localization.Localizer, lang string) *Notifier {
	if lang == "" {
		lang = localization.DefaultLanguage
	}
	return &Notifier{bot: bot, users: users, localizer: localizer, lang: lang}
}

// RequestReceived tells toID that fromID sent them a request.
func (n *Notifier) RequestReceived(ctx context.Context, fromID, toID string) {
	from := n.lookup(ctx, fromID)
	to := n.lookup(ctx, toID)

	title := n.localizer.GetString(n.lang, "something")
	if from != nil && from.Activity.Title != "" {
		title = from.Activity.Title
	}
	n.send(to, n.localizer.Format(n.lang, "request_received", n.displayName(from), title))
}

func (n *Notifier) MatchFound(ctx context.Context, senderID, recipientID, _ string) {
	n.notifyPair(ctx, "match_found", senderID, recipientID)
}

func (n *Notifier) RoomClosed(ctx context.Context, room *models.ChatRoom) {
	n.notifyPair(ctx, "room_closed", room.SenderID, room.RecipientID)
}

// notifyPair sends key to both users, each naming the other.
func (n *Notifier) notifyPair(ctx context.Context, key, a, b string) {
	ua := n.lookup(ctx, a)
	ub := n.lookup(ctx, b)
	n.send(ua, n.localizer.Format(n.lang, key, n.displayName(ub)))
	n.send(ub, n.localizer.Format(n.lang, key, n.displayName(ua)))
}

func (n *Notifier) lookup(ctx context.Context, userID string) *models.User {
	u, err := n.users.GetUserByID(ctx, userID)
	if err != nil {
		logger.Warn("Notification target lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return u
}

func (n *Notifier) displayName(u *models.User) string {
	if u == nil || u.FirstName() == "" {
		return n.localizer.GetString(n.lang, "someone")
	}
	return textutil.Capitalize(u.FirstName())
}

func (n *Notifier) send(to *models.User, text string) {
	if to == nil || to.TelegramID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(to.TelegramID, tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := n.bot.Send(msg); err != nil {
		logger.Error("Failed to send Telegram notification", "user_id", to.ID, "error", err)
	}
}

package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"quotewatch/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier pushes triggered-alert notifications to the Telegram chat each
// owner linked with /link. Owners without a linked chat only see the
// in-app notification feed.
type Notifier struct {
	sender messageSender

	mu    sync.RWMutex
	chats map[string]int64
}

func NewNotifier(sender messageSender) *Notifier {
	return &Notifier{
		sender: sender,
		chats:  make(map[string]int64),
	}
}

// Link binds an owner to a chat. Re-linking moves the owner to the new
// chat and reports false.
func (n *Notifier) Link(ownerID string, chatID int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, existed := n.chats[ownerID]
	n.chats[ownerID] = chatID
	return !existed
}

func (n *Notifier) Unlink(ownerID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.chats[ownerID]; !exists {
		return false
	}
	delete(n.chats, ownerID)
	return true
}

func (n *Notifier) LinkedChat(ownerID string) (int64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	chatID, ok := n.chats[ownerID]
	return chatID, ok
}

func (n *Notifier) LinkedCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.chats)
}

// Send delivers one notification to the owner's linked chat.
func (n *Notifier) Send(ctx context.Context, ownerID, title, body string, data map[string]string) error {
	_ = ctx
	if n == nil || n.sender == nil {
		return &domain.DeliveryError{OwnerID: ownerID, Err: fmt.Errorf("telegram sender unavailable")}
	}

	chatID, ok := n.LinkedChat(ownerID)
	if !ok {
		return &domain.DeliveryError{OwnerID: ownerID, Err: fmt.Errorf("no linked chat")}
	}

	msg := formatNotification(title, body, data)
	if _, err := n.sender.Send(&tele.Chat{ID: chatID}, msg); err != nil {
		return &domain.DeliveryError{OwnerID: ownerID, Err: err}
	}
	return nil
}

func formatNotification(title, body string, data map[string]string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(body)
	if symbol, ok := data["symbol"]; ok {
		fmt.Fprintf(&b, "\nSymbol: %s", symbol)
	}
	if value, ok := data["observed_value"]; ok {
		fmt.Fprintf(&b, "\nObserved: %s", value)
	}
	return b.String()
}

// StartTelegramBot connects the bot and registers its command handlers.
// Returns nil when no token is configured.
func StartTelegramBot(token string) (*tele.Bot, *Notifier) {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}
	notifier := NewNotifier(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/link", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /link YOUR_OWNER_ID")
		}
		ownerID := strings.TrimSpace(args[0])
		if notifier.Link(ownerID, chat.ID) {
			return c.Send(fmt.Sprintf("Alerts for %s will be delivered to this chat.", ownerID))
		}
		return c.Send(fmt.Sprintf("Moved alert delivery for %s to this chat.", ownerID))
	})

	b.Handle("/unlink", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /unlink YOUR_OWNER_ID")
		}
		ownerID := strings.TrimSpace(args[0])
		if notifier.Unlink(ownerID) {
			return c.Send(fmt.Sprintf("Alert delivery for %s disabled.", ownerID))
		}
		return c.Send(fmt.Sprintf("%s has no linked chat.", ownerID))
	})

	go b.Start()
	log.Println("Telegram bot started")
	return b, notifier
}

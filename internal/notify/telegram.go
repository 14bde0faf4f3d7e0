package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kyotei-project/backend/internal/logger"
)

// Min interval between two messages to the same chat, to stay under the ~30/min limit.
const telegramSendInterval = 2 * time.Second

// TelegramNotifier queues messages and sends them from one goroutine at a bounded rate.
type TelegramNotifier struct {
	send     func(text string) error
	interval time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan string
	wg     sync.WaitGroup
}

// NewTelegramNotifier connects the bot and starts the sender.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = false

	send := func(text string) error {
		_, err := bot.Send(tgbotapi.NewMessage(chatID, text))
		return err
	}
	logger.Info("Telegram notifier initialized for %s", bot.Self.UserName)
	return newTelegramNotifier(send, telegramSendInterval, 100), nil
}

func newTelegramNotifier(send func(string) error, interval time.Duration, buffer int) *TelegramNotifier {
	n := &TelegramNotifier{
		send:     send,
		interval: interval,
		queue:    make(chan string, buffer),
	}
	n.wg.Add(1)
	go n.sender()
	return n
}

// Notify queues a message. A full queue drops the message rather than block a job.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return fmt.Errorf("notifier closed")
	}
	select {
	case n.queue <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		logger.Warn("telegram queue full, dropping message")
		return nil
	}
}

// Close stops accepting messages and flushes the queue.
func (n *TelegramNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *TelegramNotifier) sender() {
	defer n.wg.Done()
	var last time.Time
	for text := range n.queue {
		if wait := n.interval - time.Since(last); wait > 0 {
			time.Sleep(wait)
		}
		if err := n.send(text); err != nil {
			logger.Error("telegram send failed: %v", err)
		}
		last = time.Now()
	}
}

// Package channels carries operator traffic between chat transports and the
// command router.
package channels

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/sipeed/picohub/pkg/commands"
	"github.com/sipeed/picohub/pkg/config"
	"github.com/sipeed/picohub/pkg/logger"
)

const telegramMaxMessageLength = 4096

// OperatorHandler turns one line of operator text into a reply.
type OperatorHandler interface {
	HandleOperatorText(ctx context.Context, requester, text string) (commands.Reply, bool)
}

// telegramAPI is the part of *telego.Bot the channel uses.
type telegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
}

type TelegramChannel struct {
	bot     *telego.Bot
	api     telegramAPI
	handler OperatorHandler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewTelegramChannel(cfg config.TelegramConfig, handler OperatorHandler) (*TelegramChannel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{bot: bot, api: bot, handler: handler}, nil
}

// Start begins long polling. Updates are handled one at a time in arrival
// order until Stop is called or ctx ends.
func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	ctx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.running = true
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"username": c.bot.Username(),
	})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(ctx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop ends polling and waits for the in-flight update, if any.
func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TelegramChannel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *TelegramChannel) handleMessage(ctx context.Context, message *telego.Message) {
	if message.From == nil || message.Text == "" {
		return
	}

	requester := fmt.Sprintf("%d", message.From.ID)
	chatID := message.Chat.ID

	reply, ok := c.handler.HandleOperatorText(ctx, requester, message.Text)
	if !ok {
		logger.DebugCF("telegram", "No reply for message", map[string]any{
			"user_id": requester,
		})
		return
	}

	if err := c.deliver(ctx, chatID, reply); err != nil {
		logger.ErrorCF("telegram", "Failed to send reply", map[string]any{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

func (c *TelegramChannel) deliver(ctx context.Context, chatID int64, reply commands.Reply) error {
	for _, chunk := range splitMessage(reply.Text, telegramMaxMessageLength) {
		if _, err := c.api.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}

	if doc := reply.Document; doc != nil {
		params := tu.Document(tu.ID(chatID), tu.File(tu.NameReader(bytes.NewReader(doc.Content), doc.Name)))
		if _, err := c.api.SendDocument(ctx, params); err != nil {
			return fmt.Errorf("send document %s: %w", doc.Name, err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most maxLen runes, preferring
// line breaks and then spaces in the back half of each chunk.
func splitMessage(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return []string{text}
	}

	var out []string
	for len(runes) > maxLen {
		at := findSplitPoint(runes, maxLen)
		if chunk := strings.TrimSpace(string(runes[:at])); chunk != "" {
			out = append(out, chunk)
		}
		runes = runes[at:]
	}
	if tail := strings.TrimSpace(string(runes)); tail != "" {
		out = append(out, tail)
	}
	return out
}

func findSplitPoint(runes []rune, limit int) int {
	floor := limit / 2
	for i := limit; i > floor; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := limit; i > floor; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\t' {
			return i
		}
	}
	return limit
}

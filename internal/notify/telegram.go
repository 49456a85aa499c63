package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const botChannelName = "telegram"

// BotConfig configures the Telegram bot channel.
type BotConfig struct {
	Token  string
	APIURL string
	// ProxyStatusFile holds a single proxy URL maintained by an external
	// watchdog. Read on every attempt.
	ProxyStatusFile string
	// FallbackProxy is used when the status file is absent or empty.
	FallbackProxy string
}

// BotChannel sends a text message to the recipient's configured chat.
type BotChannel struct {
	cfg     BotConfig
	chatIDs map[string]string
}

// NewBotChannel maps participant names to Telegram chat ids.
func NewBotChannel(cfg BotConfig, chatIDs map[string]string) *BotChannel {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &BotChannel{cfg: cfg, chatIDs: chatIDs}
}

func (c *BotChannel) Name() string { return botChannelName }

func (c *BotChannel) Reachable(_ context.Context, recipient string) bool {
	return c.cfg.Token != "" && c.chatIDs[recipient] != ""
}

func (c *BotChannel) Deliver(ctx context.Context, recipient string, n Notification) error {
	chatID := c.chatIDs[recipient]
	if c.cfg.Token == "" || chatID == "" {
		return fmt.Errorf("no telegram chat configured for %q", recipient)
	}

	proxy := c.discoverProxy()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	client := &http.Client{Transport: transport}
	defer transport.CloseIdleConnections()

	q := url.Values{}
	q.Set("chat_id", chatID)
	q.Set("text", n.Body)
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage?%s", c.cfg.APIURL, c.cfg.Token, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		// The URL carries the bot token; report the transport failure only.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// discoverProxy prefers the status file, then the configured fallback, then
// a direct connection. Invalid values are ignored.
func (c *BotChannel) discoverProxy() *url.URL {
	candidates := make([]string, 0, 2)
	if c.cfg.ProxyStatusFile != "" {
		if data, err := os.ReadFile(c.cfg.ProxyStatusFile); err == nil {
			candidates = append(candidates, strings.TrimSpace(string(data)))
		}
	}
	candidates = append(candidates, strings.TrimSpace(c.cfg.FallbackProxy))

	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			slog.Warn("ignoring invalid telegram proxy", slog.String("proxy", raw))
			continue
		}
		return u
	}
	return nil
}

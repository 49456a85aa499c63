package app

import (
	"log/slog"
	"net/http"
	"time"

	"secure-relay/internal/config"
	"secure-relay/internal/domain"
	"secure-relay/internal/notify"
)

// Channels builds the offline delivery channels enabled by cfg. Either may
// be absent; with none the relay never escalates.
func Channels(cfg *config.Config, roster *domain.Roster, subs domain.SubscriptionRepository) []notify.Channel {
	var channels []notify.Channel

	if cfg.PushEnabled() {
		sender := notify.NewWebPushSender(notify.VAPIDConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subscriber: cfg.VAPIDSubscriber,
		}, &http.Client{Timeout: cfg.EscalationTimeout + time.Second})
		channels = append(channels, notify.NewPushChannel(subs, sender))
	}

	if cfg.TelegramEnabled() {
		channels = append(channels, notify.NewBotChannel(notify.BotConfig{
			Token:           cfg.TelegramBotToken,
			APIURL:          cfg.TelegramAPIURL,
			ProxyStatusFile: cfg.TelegramProxyStatusFile,
			FallbackProxy:   cfg.TelegramProxy,
		}, config.TelegramChats(roster)))
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	slog.Info("notification channels configured", slog.Any("channels", names))
	return channels
}

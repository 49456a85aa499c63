//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-relay/internal/domain"
	"secure-relay/internal/notify"
)

const (
	aliceChat = "1001"
	bobChat   = "1002"
)

func TestMessaging_RabbitMQConnection(t *testing.T) {
	assert.False(t, serverRMQ.IsClosed(), "RabbitMQ should be connected")
}

func TestMessaging_PublishedTaskReachesTelegram(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := serverRMQ.PublishTask(ctx, notify.Task{
		Channel:   "telegram",
		Recipient: "bob",
		Notification: notify.Notification{
			Room:   testRoom,
			Sender: "alice",
			Title:  "New message from alice",
			Body:   "queued directly",
			Kind:   string(domain.KindText),
		},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return slices.Contains(telegram.sentTo(bobChat), "queued directly")
	}, 10*time.Second, 50*time.Millisecond)
}

func TestEscalation_OfflineParticipantIsNotified(t *testing.T) {
	resetHistory(t)
	waitOnline(t, "bob", false)
	aliceWS, _ := LoginAs(t, "alice").MustConnect()

	aliceWS.SendChat("are you there bob?")
	aliceWS.WaitForChat("are you there bob?")

	assert.Eventually(t, func() bool {
		return slices.Contains(telegram.sentTo(bobChat), "are you there bob?")
	}, 10*time.Second, 50*time.Millisecond)
	assert.NotContains(t, telegram.sentTo(aliceChat), "are you there bob?", "the sender is never notified")
}

func TestEscalation_OnlineParticipantIsNotNotified(t *testing.T) {
	resetHistory(t)
	aliceWS, _ := LoginAs(t, "alice").MustConnect()
	bobWS, _ := LoginAs(t, "bob").MustConnect()
	_, _ = LoginAs(t, "carol").MustConnect()
	waitOnline(t, "carol", true)

	aliceWS.SendChat("everyone is here")
	bobWS.WaitForChat("everyone is here")

	assert.Never(t, func() bool {
		return slices.Contains(telegram.sentTo(bobChat), "everyone is here")
	}, time.Second, 50*time.Millisecond)
}

func TestEscalation_MediaMessagesUseDescription(t *testing.T) {
	resetHistory(t)
	waitOnline(t, "alice", false)
	bobWS, _ := LoginAs(t, "bob").MustConnect()

	bobWS.Send(domain.ClientEvent{Type: domain.EventChatMessage, Body: "/media/voice-1.webm", Kind: string(domain.KindAudio)})
	bobWS.WaitForChat("/media/voice-1.webm")

	assert.Eventually(t, func() bool {
		return slices.Contains(telegram.sentTo(aliceChat), "sent a voice message")
	}, 10*time.Second, 50*time.Millisecond)
}

func TestEscalation_PingReachesOfflineParticipant(t *testing.T) {
	waitOnline(t, "bob", false)
	aliceWS, _ := LoginAs(t, "alice").MustConnect()

	before := len(telegram.sentTo(bobChat))
	aliceWS.Send(domain.ClientEvent{Type: domain.EventPing})

	assert.Eventually(t, func() bool {
		return len(telegram.sentTo(bobChat)) > before
	}, 10*time.Second, 50*time.Millisecond)
	aliceWS.ExpectSilence(domain.EventPingError, 500*time.Millisecond)
}

func TestEscalation_UnreachablePingWarnsSender(t *testing.T) {
	// carol has no Telegram chat and no push subscription.
	aliceWS, _ := LoginAs(t, "alice").MustConnect()
	_, _ = LoginAs(t, "bob").MustConnect()
	waitOnline(t, "bob", true)
	waitOnline(t, "carol", false)

	aliceWS.Send(domain.ClientEvent{Type: domain.EventPing})

	ev := aliceWS.WaitFor(domain.EventPingError)
	assert.Contains(t, ev.Error, "carol")
}

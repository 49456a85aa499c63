package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPresence map[string]bool

func (p stubPresence) IsOnline(_, identity string) bool { return p[identity] }

type stubChannel struct {
	name      string
	reachable map[string]bool
}

func (c *stubChannel) Name() string { return c.name }
func (c *stubChannel) Reachable(_ context.Context, r string) bool {
	return c.reachable == nil || c.reachable[r]
}
func (c *stubChannel) Deliver(context.Context, string, Notification) error { return nil }

type recordingRunner struct {
	mu     sync.Mutex
	tasks  []Task
	refuse bool
}

func (r *recordingRunner) Submit(t Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return false
	}
	r.tasks = append(r.tasks, t)
	return true
}

func members(names ...string) func() []string {
	return func() []string { return names }
}

func TestDispatcher_EscalatesOncePerChannelForOfflineRecipient(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(members("alice", "bob"), stubPresence{"alice": true}, runner,
		&stubChannel{name: "push"}, &stubChannel{name: "telegram"})

	res := d.Evaluate(context.Background(), Notification{Room: "r", Sender: "alice", Body: "hi", MessageID: 7})

	assert.Equal(t, Escalated, res.Outcome)
	assert.Equal(t, []string{"bob"}, res.Offline)
	assert.Equal(t, 2, res.Submitted)
	require.Len(t, runner.tasks, 2)
	assert.Equal(t, "push", runner.tasks[0].Channel)
	assert.Equal(t, "telegram", runner.tasks[1].Channel)
	for _, task := range runner.tasks {
		assert.Equal(t, "bob", task.Recipient)
		assert.Equal(t, int64(7), task.Notification.MessageID)
	}
}

func TestDispatcher_NoEscalationWhenEveryoneOnline(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(members("alice", "bob"), stubPresence{"alice": true, "bob": true}, runner, &stubChannel{name: "push"})

	res := d.Evaluate(context.Background(), Notification{Room: "r", Sender: "alice"})

	assert.Equal(t, NotNeeded, res.Outcome)
	assert.Empty(t, runner.tasks)
}

func TestDispatcher_SenderIsNeverARecipient(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(members("alice"), stubPresence{}, runner, &stubChannel{name: "push"})

	res := d.Evaluate(context.Background(), Notification{Room: "r", Sender: "alice"})

	assert.Equal(t, NotNeeded, res.Outcome)
	assert.Empty(t, runner.tasks)
}

func TestDispatcher_SkipsUnreachableChannels(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(members("alice", "bob"), stubPresence{}, runner,
		&stubChannel{name: "push", reachable: map[string]bool{}},
		&stubChannel{name: "telegram", reachable: map[string]bool{"bob": true}})

	res := d.Evaluate(context.Background(), Notification{Room: "r", Sender: "alice"})

	assert.Equal(t, Escalated, res.Outcome)
	assert.Equal(t, 1, res.Attempted)
	require.Len(t, runner.tasks, 1)
	assert.Equal(t, "telegram", runner.tasks[0].Channel)
}

func TestDispatcher_NoChannelsStillReportsEscalation(t *testing.T) {
	d := NewDispatcher(members("alice", "bob"), stubPresence{}, &recordingRunner{})

	res := d.Evaluate(context.Background(), Notification{Room: "r", Sender: "alice"})

	assert.Equal(t, Escalated, res.Outcome)
	assert.Zero(t, res.Attempted)
}

func TestDispatcher_RefusedTasksAreNotCounted(t *testing.T) {
	d := NewDispatcher(members("alice", "bob"), stubPresence{}, &recordingRunner{refuse: true}, &stubChannel{name: "push"})

	res := d.Evaluate(context.Background(), Notification{Room: "r", Sender: "alice"})

	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 0, res.Submitted)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "escalated", Escalated.String())
	assert.Equal(t, "not_needed", NotNeeded.String())
}

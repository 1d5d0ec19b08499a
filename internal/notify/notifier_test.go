package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	sent  []string
	fail  bool
}

func (s *fakeSender) Send(_ context.Context, title, _ string) error {
	if s.fail {
		return errors.New("unreachable")
	}
	s.sent = append(s.sent, title)
	return nil
}
func (s *fakeSender) Name() string { return s.name }

func TestNotifyFiltersByEventType(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{EventBreakerTripped}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), EventOpportunity, "opp", "x"))
	assert.Empty(t, sender.sent)

	require.NoError(t, n.Notify(context.Background(), EventBreakerTripped, "tripped", "x"))
	assert.Equal(t, []string{"tripped"}, sender.sent)
}

func TestNotifyEmptyAllowlistPassesEverything(t *testing.T) {
	sender := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{sender}, nil, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), EventRollback, "rb", "x"))
	assert.Len(t, sender.sent, 1)
}

func TestNotifyOneFailureDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "telegram", fail: true}
	good := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.New(slog.DiscardHandler))

	err := n.Notify(context.Background(), EventExecution, "done", "x")
	assert.Error(t, err)
	assert.Len(t, good.sent, 1, "healthy sender still delivers")
}

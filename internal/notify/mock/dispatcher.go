package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/chronoguard/internal/notify"
)

// MockDispatcher satisfies notify.Dispatcher for testing. It records every reminder it is given.
type MockDispatcher struct {
	Name_        string
	DispatchFunc func(ctx context.Context, r notify.Reminder) error

	mu   sync.Mutex
	sent []notify.Reminder
}

func (m *MockDispatcher) Name() string { return m.Name_ }

func (m *MockDispatcher) Dispatch(ctx context.Context, r notify.Reminder) error {
	m.mu.Lock()
	m.sent = append(m.sent, r)
	m.mu.Unlock()
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, r)
	}
	return nil
}

func (m *MockDispatcher) Close() error { return nil }

// Sent returns a copy of the reminders received so far, including failed ones.
func (m *MockDispatcher) Sent() []notify.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Reminder, len(m.sent))
	copy(out, m.sent)
	return out
}

// NewMockDispatcher returns a MockDispatcher that accepts every reminder.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{Name_: "mock"}
}

// NewFailingDispatcher returns a MockDispatcher that always returns the given error.
func NewFailingDispatcher(err error) *MockDispatcher {
	return &MockDispatcher{
		Name_: "mock-failing",
		DispatchFunc: func(_ context.Context, _ notify.Reminder) error {
			return err
		},
	}
}

// Compile-time check that MockDispatcher implements Dispatcher.
var _ notify.Dispatcher = (*MockDispatcher)(nil)

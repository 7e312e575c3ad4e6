// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pagebridge/internal/channel"
	"github.com/xkilldash9x/pagebridge/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Bridge() config.BridgeConfig {
	args := m.Called()
	return args.Get(0).(config.BridgeConfig)
}

func (m *MockConfig) Controller() config.ControllerConfig {
	args := m.Called()
	return args.Get(0).(config.ControllerConfig)
}

// -- Channel Mock --

// MockChannel mocks channel.Channel. Variadic arguments are recorded as a
// single []any so expectations read
// On("SendAndWait", mock.Anything, topic, []any{...}).
//
// Subscribe is not recorded; handlers are kept so tests can Push.
type MockChannel struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[string][]channel.PushHandler
}

var _ channel.Channel = (*MockChannel)(nil)

func (m *MockChannel) SendOneWay(topic string, args ...any) error {
	return m.Called(topic, normalize(args)).Error(0)
}

func (m *MockChannel) SendAndWait(ctx context.Context, topic string, args ...any) (channel.Reply, error) {
	ret := m.Called(ctx, topic, normalize(args))
	reply, _ := ret.Get(0).(channel.Reply)
	return reply, ret.Error(1)
}

func (m *MockChannel) Subscribe(topic string, handler channel.PushHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string][]channel.PushHandler)
	}
	m.handlers[topic] = append(m.handlers[topic], handler)
	idx := len(m.handlers[topic]) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.handlers[topic][idx] = nil
	}
}

// Push encodes args and hands them to every live subscriber of topic on
// the calling goroutine. It reports how many handlers ran.
func (m *MockChannel) Push(topic string, args ...any) (int, error) {
	encoded, err := channel.EncodeArgs(args...)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	handlers := append([]channel.PushHandler(nil), m.handlers[topic]...)
	m.mu.Unlock()

	n := 0
	for _, h := range handlers {
		if h != nil {
			h(encoded)
			n++
		}
	}
	return n, nil
}

// Subscribers reports the number of live handlers for topic.
func (m *MockChannel) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.handlers[topic] {
		if h != nil {
			n++
		}
	}
	return n
}

func normalize(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

// -- Pusher Mock --

// MockPusher mocks channel.Pusher.
type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) Push(topic string, args ...any) error {
	return m.Called(topic, normalize(args)).Error(0)
}

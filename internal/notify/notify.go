// Package notify dispatches server-initiated notifications (messages with
// no id) to handlers registered by notification type.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jakewatkins/mcphost/internal/protocol"
)

// Handler receives every notification of the type it was registered for.
type Handler func(serverName string, params []byte)

// Bus fans out server notifications to registered handlers, keyed by MCP
// notification method (e.g. "notifications/tools/list_changed"). Grounded
// on the original Host's register_notification_handler (mcp_host/host.py),
// generalized from a single dispatch point to a small pub-sub so more than
// one handler can watch the same notification type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// New constructs an empty Bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{handlers: make(map[string][]Handler), logger: logger.Named("notify")}
}

// Register adds handler for notificationType. Multiple handlers for the
// same type all run, in registration order.
func (b *Bus) Register(notificationType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[notificationType] = append(b.handlers[notificationType], handler)
}

// Dispatch is the notification handler wired into each process.Process;
// it looks up msg.Method and invokes every registered handler for it.
// Unrecognized notification types are dropped silently, matching the
// original Host's "otherwise silently ignore" behavior.
func (b *Bus) Dispatch(serverName string, msg *protocol.Message) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[msg.Method]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	for _, h := range handlers {
		h(serverName, msg.Params)
	}
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/ports"
)

// StreamID is the output processor id of a StreamManager.
const StreamID = "sse"

// streamBuffer is how many messages a slow client may lag behind before drops.
const streamBuffer = 16

// StreamManager fans dispatched messages out to the SSE clients of each
// conversation. Register it as an output processor to feed the streams.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe returns a channel of messages for the conversation and a func
// that unsubscribes and closes it.
func (sm *StreamManager) Subscribe(conversationID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, streamBuffer)
	if _, ok := sm.subscribers[conversationID]; !ok {
		sm.subscribers[conversationID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[conversationID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[conversationID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, conversationID)
				}
			}
		})
	}
}

// Subscribers returns how many clients follow the conversation.
func (sm *StreamManager) Subscribers(conversationID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[conversationID])
}

// Broadcast sends msg to every subscriber of the conversation. Clients whose
// buffer is full miss the message.
func (sm *StreamManager) Broadcast(conversationID, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[conversationID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE client buffer full, dropping message", "conversation", conversationID)
		}
	}
}

func (sm *StreamManager) ID() string { return StreamID }

// Send implements ports.OutputProcessor.
func (sm *StreamManager) Send(ctx context.Context, req ports.OutputRequest) error {
	data, err := json.Marshal(req.Message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	sm.Broadcast(req.ConversationID, string(data))
	return nil
}

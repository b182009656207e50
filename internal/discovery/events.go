package discovery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tetsuo-ai/AgenC-sub003/internal/domain/task"
)

// taskEventMessage is the wire shape of a substrate task-observation event.
type taskEventMessage struct {
	Task task.Task `json:"task"`
}

// EventSubscriber maintains a websocket subscription to the ledger's task
// event feed, re-establishing the connection on failure.
type EventSubscriber struct {
	url          string
	logger       *logrus.Entry
	reconnectGap time.Duration

	onEvent func(task.Task)
	onError func(error)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	dial func(url string) (*websocket.Conn, error)
}

// NewEventSubscriber constructs an EventSubscriber against a ws:// or wss://
// URL.
func NewEventSubscriber(url string, logger *logrus.Entry, onEvent func(task.Task), onError func(error)) *EventSubscriber {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &EventSubscriber{
		url:          url,
		logger:       logger.WithField("component", "discovery.events"),
		reconnectGap: 2 * time.Second,
		onEvent:      onEvent,
		onError:      onError,
		dial: func(url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			return conn, err
		},
	}
}

// Start begins the subscribe-and-read loop in a background goroutine.
// Idempotent.
func (s *EventSubscriber) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop unsubscribes and stops the read loop.
func (s *EventSubscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
}

func (s *EventSubscriber) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := s.dial(s.url)
		if err != nil {
			s.logger.WithError(err).Warn("event subscription dial failed, retrying")
			if s.onError != nil {
				s.onError(err)
			}
			if !sleepCtx(ctx, s.reconnectGap) {
				return
			}
			continue
		}

		s.readLoop(ctx, conn)
		conn.Close()

		if !sleepCtx(ctx, s.reconnectGap) {
			return
		}
	}
}

func (s *EventSubscriber) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Warn("event subscription read failed, reconnecting")
				if s.onError != nil {
					s.onError(err)
				}
			}
			return
		}

		var msg taskEventMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.WithError(err).Warn("failed to decode task event")
			continue
		}
		if s.onEvent != nil {
			s.onEvent(msg.Task)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

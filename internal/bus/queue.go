package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vultr740-byte/openclaw/internal/logger"
)

var (
	ErrQueueFull      = errors.New("queue is full")
	ErrAlreadyStarted = errors.New("message bus is already started")
	ErrNotStarted     = errors.New("message bus is not started")
)

const subscriberBuffer = 16

// MessageBus fans inbound and outbound messages out to subscribers.
// Publishing never blocks: a full queue returns ErrQueueFull and a full
// subscriber misses the message.
type MessageBus struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool

	inboundCh  chan InboundMessage
	outboundCh chan OutboundMessage

	inboundSubscribers  map[int64]chan InboundMessage
	outboundSubscribers map[int64]chan OutboundMessage
	subscriberID        int64

	dropped atomic.Uint64
}

// New creates a new MessageBus with the specified capacity for both queues
func New(capacity int, logger *logger.Logger) *MessageBus {
	return &MessageBus{
		logger:              logger,
		inboundCh:           make(chan InboundMessage, capacity),
		outboundCh:          make(chan OutboundMessage, capacity),
		inboundSubscribers:  make(map[int64]chan InboundMessage),
		outboundSubscribers: make(map[int64]chan OutboundMessage),
	}
}

// Start starts the distribution goroutines.
func (mb *MessageBus) Start(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.started {
		return ErrAlreadyStarted
	}

	mb.ctx, mb.cancel = context.WithCancel(ctx)
	mb.started = true

	go mb.distributeInbound(mb.ctx, mb.inboundCh)
	go mb.distributeOutbound(mb.ctx, mb.outboundCh)

	mb.logger.Info("message bus started", logger.Field{Key: "capacity", Value: cap(mb.inboundCh)})
	return nil
}

// Stop stops distribution and closes every subscriber channel. The bus can
// be started again afterwards.
func (mb *MessageBus) Stop() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.started {
		return ErrNotStarted
	}

	if mb.cancel != nil {
		mb.cancel()
	}

	for id, ch := range mb.inboundSubscribers {
		close(ch)
		delete(mb.inboundSubscribers, id)
	}
	for id, ch := range mb.outboundSubscribers {
		close(ch)
		delete(mb.outboundSubscribers, id)
	}

	close(mb.inboundCh)
	close(mb.outboundCh)
	mb.inboundCh = make(chan InboundMessage, cap(mb.inboundCh))
	mb.outboundCh = make(chan OutboundMessage, cap(mb.outboundCh))

	mb.started = false

	mb.logger.Info("message bus stopped", logger.Field{Key: "dropped", Value: mb.dropped.Load()})
	return nil
}

// PublishInbound publishes an inbound message to the queue
func (mb *MessageBus) PublishInbound(msg InboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if !mb.started {
		return ErrNotStarted
	}

	select {
	case mb.inboundCh <- msg:
		mb.logger.DebugCtx(mb.ctx, "inbound message published",
			logger.Field{Key: "channel", Value: msg.ChannelType},
			logger.Field{Key: "session_id", Value: msg.SessionID})
		return nil
	default:
		mb.logger.WarnCtx(mb.ctx, "inbound queue full",
			logger.Field{Key: "capacity", Value: cap(mb.inboundCh)})
		return ErrQueueFull
	}
}

// PublishSystemEvent queues text as a system event for sessionKey.
func (mb *MessageBus) PublishSystemEvent(sessionKey, text string) error {
	return mb.PublishInbound(*NewSystemEvent(sessionKey, text))
}

// PublishOutbound publishes an outbound message to the queue
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	if !mb.started {
		return ErrNotStarted
	}

	select {
	case mb.outboundCh <- msg:
		mb.logger.DebugCtx(mb.ctx, "outbound message published",
			logger.Field{Key: "channel", Value: msg.ChannelType},
			logger.Field{Key: "user_id", Value: msg.UserID})
		return nil
	default:
		mb.logger.WarnCtx(mb.ctx, "outbound queue full",
			logger.Field{Key: "capacity", Value: cap(mb.outboundCh)})
		return ErrQueueFull
	}
}

// SubscribeInbound returns a channel of inbound messages. It is closed when
// ctx is done or the bus stops; nil is returned if the bus is not started.
func (mb *MessageBus) SubscribeInbound(ctx context.Context) <-chan InboundMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.started {
		return nil
	}

	ch := make(chan InboundMessage, subscriberBuffer)
	mb.subscriberID++
	id := mb.subscriberID
	mb.inboundSubscribers[id] = ch
	go mb.unsubscribeOnDone(ctx, mb.ctx, func() {
		if c, ok := mb.inboundSubscribers[id]; ok {
			close(c)
			delete(mb.inboundSubscribers, id)
		}
	})

	mb.logger.DebugCtx(ctx, "inbound subscriber added",
		logger.Field{Key: "subscriber_id", Value: id})

	return ch
}

// SubscribeOutbound returns a channel of outbound messages, with the same
// lifetime rules as SubscribeInbound.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) <-chan OutboundMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.started {
		return nil
	}

	ch := make(chan OutboundMessage, subscriberBuffer)
	mb.subscriberID++
	id := mb.subscriberID
	mb.outboundSubscribers[id] = ch
	go mb.unsubscribeOnDone(ctx, mb.ctx, func() {
		if c, ok := mb.outboundSubscribers[id]; ok {
			close(c)
			delete(mb.outboundSubscribers, id)
		}
	})

	mb.logger.DebugCtx(ctx, "outbound subscriber added",
		logger.Field{Key: "subscriber_id", Value: id})

	return ch
}

func (mb *MessageBus) unsubscribeOnDone(subCtx, busCtx context.Context, remove func()) {
	select {
	case <-subCtx.Done():
		mb.mu.Lock()
		remove()
		mb.mu.Unlock()
	case <-busCtx.Done():
		// Stop closes the channel.
	}
}

func (mb *MessageBus) distributeInbound(ctx context.Context, in <-chan InboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			mb.mu.RLock()
			for _, ch := range mb.inboundSubscribers {
				select {
				case ch <- msg:
				default:
					mb.dropped.Add(1)
					mb.logger.WarnCtx(ctx, "inbound subscriber channel full, skipping message")
				}
			}
			mb.mu.RUnlock()
		}
	}
}

func (mb *MessageBus) distributeOutbound(ctx context.Context, out <-chan OutboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-out:
			if !ok {
				return
			}
			mb.mu.RLock()
			for _, ch := range mb.outboundSubscribers {
				select {
				case ch <- msg:
				default:
					mb.dropped.Add(1)
					mb.logger.WarnCtx(ctx, "outbound subscriber channel full, skipping message")
				}
			}
			mb.mu.RUnlock()
		}
	}
}

// IsStarted returns true if the message bus is started
func (mb *MessageBus) IsStarted() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.started
}

// Dropped returns how many deliveries to full subscribers were skipped.
func (mb *MessageBus) Dropped() uint64 {
	return mb.dropped.Load()
}

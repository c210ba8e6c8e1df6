package realtime

import (
	"log"

	"devconnect/internal/devtypes"
)

// Notifier 是服务层发布变更事件的接口。Hub 实现了它；测试中可以
// 用内存假实现替代。
type Notifier interface {
	Publish(event devtypes.ChangeEvent)
}

// Subscription is a live handle on the changefeed. Events matching any
// of its filters are delivered on C. Close releases the handle; the
// hub closes C afterwards.
type Subscription struct {
	C       chan devtypes.ChangeEvent
	filters []devtypes.EventFilter
	hub     *Hub
}

// Matches reports whether the event satisfies at least one of the
// subscription's filters (the filters describe independent scopes:
// subject profile, pair requests, pair connections).
func (s *Subscription) Matches(event devtypes.ChangeEvent) bool {
	for _, f := range s.filters {
		if f.Matches(event) {
			return true
		}
	}
	return false
}

// Close tears down the subscription. Safe to call once per
// subscription; used when a profile view unmounts or a websocket
// client disconnects.
func (s *Subscription) Close() {
	s.hub.unregister <- s
}

// Hub maintains the set of active changefeed subscriptions and fans
// published change events out to the ones whose filters match. All
// state is owned by the Run loop; callers interact only through
// channels.
type Hub struct {
	subscriptions map[*Subscription]struct{}

	register   chan *Subscription
	unregister chan *Subscription
	events     chan devtypes.ChangeEvent
	quit       chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[*Subscription]struct{}),
		register:      make(chan *Subscription),
		unregister:    make(chan *Subscription),
		events:        make(chan devtypes.ChangeEvent, 256),
		quit:          make(chan struct{}),
	}
}

// Subscribe registers a new subscription covering the given filters.
// Requires the Run loop to be active.
func (h *Hub) Subscribe(filters ...devtypes.EventFilter) *Subscription {
	sub := &Subscription{
		C:       make(chan devtypes.ChangeEvent, 16),
		filters: filters,
		hub:     h,
	}
	h.register <- sub
	return sub
}

// Publish hands a change event to the hub for fan-out. Non-blocking:
// if the hub's queue is full the event is dropped, which is tolerable
// because subscribers re-fetch state instead of patching it.
func (h *Hub) Publish(event devtypes.ChangeEvent) {
	select {
	case h.events <- event:
	case <-h.quit:
	default:
		log.Printf("警告: realtime hub 事件队列已满，丢弃 %s/%s 事件 (record %d)",
			event.Table, event.Action, event.RecordID)
	}
}

// Stop terminates the Run loop and closes every remaining subscription.
func (h *Hub) Stop() {
	close(h.quit)
}

// Run starts the hub and listens for subscriptions and events on its
// channels. Runs until Stop is called.
func (h *Hub) Run() {
	log.Println("Realtime hub run loop started.")
	for {
		select {
		case sub := <-h.register:
			h.subscriptions[sub] = struct{}{}

		case sub := <-h.unregister:
			if _, ok := h.subscriptions[sub]; ok {
				delete(h.subscriptions, sub)
				close(sub.C)
			}

		case event := <-h.events:
			for sub := range h.subscriptions {
				if !sub.Matches(event) {
					continue
				}
				select {
				case sub.C <- event:
				default:
					// 订阅者消费太慢。丢弃事件而不是阻塞 hub；
					// 订阅者下一次事件到来时会整体重取。
					log.Printf("警告: 订阅者事件通道已满，丢弃 %s/%s 事件", event.Table, event.Action)
				}
			}

		case <-h.quit:
			for sub := range h.subscriptions {
				delete(h.subscriptions, sub)
				close(sub.C)
			}
			log.Println("Realtime hub run loop stopped.")
			return
		}
	}
}

// Package broadcast fans full-state snapshots out to every subscribed
// display surface. Three fixed channels carry the queue, the display
// config, and the monster catalog. A snapshot always replaces the
// receiver's whole copy; there are no deltas, no acks, and no replay for
// subscribers that arrive after a publish. The next publish catches
// them up.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Channel names are fixed identifiers shared by every surface in the
// process family. They match the original overlay's channel names so
// existing surfaces keep working.
type Channel string

const (
	ChannelQueue   Channel = "mhw-queue-channel"
	ChannelConfig  Channel = "mhw-config-channel"
	ChannelCatalog Channel = "mhw-monster-channel"
)

// Channels lists all valid channels in a stable order.
var Channels = []Channel{ChannelQueue, ChannelConfig, ChannelCatalog}

// Valid reports whether c is one of the fixed channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelQueue, ChannelConfig, ChannelCatalog:
		return true
	}
	return false
}

// Envelope is the wire payload: a tagged full snapshot.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// subscriberBuffer bounds how far a slow surface may lag before it
// starts dropping snapshots. Dropping is safe: payloads are full
// snapshots, so the next one delivered is complete.
const subscriberBuffer = 16

// Subscription is a live feed of envelopes for one channel.
// Close is idempotent and releases the subscriber slot.
type Subscription struct {
	C <-chan Envelope

	hub     *Hub
	channel Channel
	ch      chan Envelope
	once    sync.Once
}

// Close detaches the subscription. The envelope channel is closed so
// range loops terminate.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.channel], s.ch)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Hub is the in-process publisher connecting the queue engine and the
// HTTP event streams. Publish order is delivery order per channel.
type Hub struct {
	mu   sync.Mutex
	subs map[Channel]map[chan Envelope]struct{}
}

// NewHub returns a hub with all three channels registered.
func NewHub() *Hub {
	subs := make(map[Channel]map[chan Envelope]struct{}, len(Channels))
	for _, c := range Channels {
		subs[c] = make(map[chan Envelope]struct{})
	}
	return &Hub{subs: subs}
}

// Subscribe attaches a listener to channel. The subscription only sees
// snapshots published after this call.
func (h *Hub) Subscribe(channel Channel) (*Subscription, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unknown broadcast channel %q", channel)
	}
	ch := make(chan Envelope, subscriberBuffer)
	h.mu.Lock()
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()
	return &Subscription{C: ch, hub: h, channel: channel, ch: ch}, nil
}

// Publish serializes payload and delivers an "update" envelope to every
// current subscriber of channel. Subscribers whose buffers are full lose
// this snapshot rather than blocking the publisher.
func (h *Hub) Publish(channel Channel, payload any) error {
	if !channel.Valid() {
		return fmt.Errorf("unknown broadcast channel %q", channel)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", channel, err)
	}
	env := Envelope{Type: "update", Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[channel] {
		select {
		case ch <- env:
		default:
			// Slow surface; it will resync on the next publish.
		}
	}
	return nil
}

// SubscriberCount reports live subscribers on a channel, for /status.
func (h *Hub) SubscriberCount(channel Channel) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channel])
}

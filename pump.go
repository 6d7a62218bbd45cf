package nt4

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	clockUpdateInterval = 5 * time.Second
	pumpIdleTick        = 7 * time.Millisecond
	valueRetryDelay     = 7 * time.Millisecond
)

// pumpLoop is the Receive Pump: every iteration it sends a clock update
// if one is due, then non-blockingly drains whatever frames are already
// buffered, dispatching each. Probing for frames never suspends on the
// transport lock: if a sender holds it, the drain is skipped until the
// next tick. The clock pings and eviction unsubscribes the pump emits go
// through the Send Path and wait for the lock like any other send.
func (c *Client) pumpLoop() {
	defer c.wg.Done()

	c.lastClockUpdate = time.Now()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if time.Since(c.lastClockUpdate) >= clockUpdateInterval {
			c.sendClockPing()
			c.lastClockUpdate = time.Now()
		}

		c.drain()

		select {
		case <-c.done:
			return
		case <-time.After(pumpIdleTick):
		}
	}
}

// drain polls the transport for already-available frames and dispatches
// each, one non-blocking probe at a time. It returns without waiting if
// the transport lock is held by a sender.
func (c *Client) drain() {
	for {
		if !c.mu.TryLock() {
			return
		}
		f, ok := c.t.tryRead()
		if !ok {
			c.mu.Unlock()
			return
		}
		if f.err != nil {
			if isClosedTransportErr(f.err) {
				c.reconnectLocked()
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
			c.log.Warn("transport read error", "error", f.err)
			continue
		}
		c.mu.Unlock()

		c.dispatch(f.messageType, f.data)
	}
}

// dispatch handles one inbound frame. Runs outside the transport lock so
// registry work and user callbacks never block a concurrent sender.
func (c *Client) dispatch(messageType int, data []byte) {
	switch messageType {
	case websocket.TextMessage:
		c.dispatchText(data)
	case websocket.BinaryMessage:
		c.dispatchBinary(data)
	default:
		c.log.Warn("unexpected frame type", "type", messageType)
	}
}

func (c *Client) dispatchText(data []byte) {
	envelopes, err := decodeIncomingFrame(data)
	if err != nil {
		c.log.Warn("decode control frame", "error", err)
		return
	}

	for _, env := range envelopes {
		switch env.Method {
		case "announce":
			c.handleAnnounce(env.Params)
		case "unannounce":
			c.handleUnannounce(env.Params)
		case "properties":
			// No-op at the core level: properties are captured on
			// announce; deltas are not tracked.
		default:
			c.log.Warn("unexpected control message", "method", env.Method)
		}
	}
}

func (c *Client) handleAnnounce(raw []byte) {
	var params announceParams
	if err := unmarshalParams(raw, &params); err != nil {
		c.log.Warn("decode announce", "error", err)
		return
	}

	t := Topic{
		ID:         params.ID,
		Name:       params.Name,
		Type:       typeByName(params.Type),
		Properties: params.Properties,
	}
	if params.PubUID != nil {
		t.PubUID = params.PubUID
	}

	_, existedBefore := c.topics.lookup(params.ID)
	stored := c.topics.announce(t, existedBefore)

	if c.cfg.OnAnnounce != nil {
		c.cfg.OnAnnounce(stored)
	}
}

func (c *Client) handleUnannounce(raw []byte) {
	var params unannounceParams
	if err := unmarshalParams(raw, &params); err != nil {
		c.log.Warn("decode unannounce", "error", err)
		return
	}

	removed, ok := c.topics.unannounce(params.ID)
	if ok && c.cfg.OnUnAnnounce != nil {
		c.cfg.OnUnAnnounce(removed)
	}
}

func (c *Client) dispatchBinary(data []byte) {
	frame, err := decodeValueFrame(data)
	if err != nil {
		c.log.Warn("decode value frame", "error", err)
		return
	}

	switch {
	case frame.ID == timeTopicID:
		c.handleClockReply(frame)
	case frame.ID >= 0:
		c.routeOrRetry(frame)
	default:
		c.log.Warn("value frame with id < -1 dropped", "id", frame.ID)
	}
}

// routeOrRetry routes a value to matching subscriptions, or — if the
// topic hasn't been announced yet (a race between the value and its
// announce) — schedules a single 7ms retry before giving up silently.
func (c *Client) routeOrRetry(frame valueFrame) {
	topic, ok := c.topics.lookup(frame.ID)
	if !ok {
		time.AfterFunc(valueRetryDelay, func() {
			if t, ok := c.topics.lookup(frame.ID); ok {
				c.routeValue(t, frame)
			}
		})
		return
	}
	c.routeValue(topic, frame)
}

func (c *Client) routeValue(topic Topic, frame valueFrame) {
	typ, ok := typeByNum(frame.TypeTag)
	if !ok {
		c.log.Warn("value frame with invalid type tag dropped", "tag", frame.TypeTag)
		return
	}
	evicted := c.subs.route(topic.Name, frame.Timestamp, typ, frame.Value)
	if len(evicted) > 0 {
		c.evictUnsubscribe(evicted)
	}
}

func (c *Client) handleClockReply(frame valueFrame) {
	echoed, ok := asUint64(frame.Value)
	if !ok {
		c.log.Warn("clock reply with non-integer payload dropped")
		return
	}

	if c.clock.handleNewTimestamp(frame.Timestamp, uint32(echoed)) {
		return
	}

	// Overflow: re-anchor, send a fresh ping under the new anchor, and
	// retry once against the original reply — mirrors the source's
	// update_time()-then-retry recovery path exactly.
	c.clock.reanchor()
	c.sendClockPing()
	c.clock.handleNewTimestamp(frame.Timestamp, uint32(echoed))
}

// sendClockPing emits `[-1, 0, int_type_tag, client_time_micros]`.
func (c *Client) sendClockPing() {
	data, err := encodeValueFrame(timeTopicID, 0, Int.Num(), int64(c.clock.clientTimeMicros()))
	if err != nil {
		c.log.Error("encode clock ping", "error", err)
		return
	}
	if err := c.sendBinary(data); err != nil {
		c.log.Warn("send clock ping failed", "error", err)
	}
}

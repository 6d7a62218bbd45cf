package nt4

import (
	"time"

	"github.com/gorilla/websocket"
)

// reconnectLocked runs the reconnect loop. The caller must already hold
// c.mu; it stays held for the entire loop, so concurrent sends and the
// pump's poll both simply block on the mutex until a new transport is in
// place, never observing an error.
func (c *Client) reconnectLocked() {
	if c.t != nil {
		c.t.close()
	}

	if c.cfg.OnDisconnect != nil {
		c.cfg.OnDisconnect()
	}

	for {
		select {
		case <-c.done:
			return
		default:
		}

		time.Sleep(c.cfg.ConnectTimeout)

		conn, err := dial(c.addr, c.cfg.ConnectTimeout)
		if err != nil {
			c.log.Warn("reconnect attempt failed", "addr", c.addr, "error", err)
			continue
		}

		c.t = newTransport(conn)
		c.rehydrate()

		if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect()
		}
		return
	}
}

// rehydrate sends the single on-open/on-reconnect frame: one publish per
// currently-published topic, one subscribe per currently-live
// subscription. Dead subscriptions are pruned first. Built with append
// throughout — the source's bug was writing into a vector by index
// without extending it first.
//
// Must be called with c.mu already held (it writes directly with
// c.t.write rather than going through sendFrame, to avoid re-entering the
// reconnect path from inside reconnectLocked itself).
func (c *Client) rehydrate() {
	c.subs.pruneDead()

	var messages []outgoingMessage

	for _, pt := range c.topics.publishedSnapshot() {
		messages = append(messages, newPublishMessage(pt))
	}
	for _, s := range c.subs.snapshot() {
		messages = append(messages, newSubscribeMessage(s.topics, s.subuid, s.opts))
	}

	data, err := encodeFrame(messages...)
	if err != nil {
		c.log.Error("encode rehydration frame", "error", err)
		return
	}

	if err := c.t.write(websocket.TextMessage, data); err != nil {
		c.log.Warn("send rehydration frame failed", "error", err)
	}
}

package nt4

import "github.com/gorilla/websocket"

// sendText sends one text (JSON control) frame.
func (c *Client) sendText(data []byte) error {
	return c.sendFrame(websocket.TextMessage, data)
}

// sendBinary sends one binary (MsgPack value) frame.
func (c *Client) sendBinary(data []byte) error {
	return c.sendFrame(websocket.BinaryMessage, data)
}

// sendFrame is the Send Path: it acquires the transport lock, issues
// exactly one write, and releases. A closed-transport error triggers
// reconnect (which blocks, still holding the lock, until a new transport
// is live) and then retries the same frame; any other error is surfaced
// to the caller.
func (c *Client) sendFrame(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		err := c.t.write(messageType, data)
		if err == nil {
			return nil
		}
		if isClosedTransportErr(err) {
			c.reconnectLocked()
			continue
		}
		return newError(KindSendFailure, "send_frame", err)
	}
}

package nt4

import (
	"github.com/gorilla/websocket"
)

// frame is one inbound WebSocket message, pulled off the wire by the
// reader goroutine and handed to whoever calls tryRead next.
type frame struct {
	messageType int
	data        []byte
	err         error
}

// transport wraps one *websocket.Conn generation. A dedicated goroutine
// blocks on ReadMessage and feeds a buffered channel, so the Receive Pump
// can poll non-blockingly instead of suspending on the network directly —
// the Go realization of the source's cooperative `poll!(socket.next())`.
//
// Exactly one writer and one reader are meant to touch a transport at any
// instant; callers enforce that by holding Client.mu around every write
// and every call to tryRead.
type transport struct {
	conn   *websocket.Conn
	frames chan frame
	closed chan struct{}
}

func newTransport(conn *websocket.Conn) *transport {
	t := &transport{
		conn:   conn,
		frames: make(chan frame, 64),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *transport) readLoop() {
	for {
		mt, data, err := t.conn.ReadMessage()
		select {
		case t.frames <- frame{messageType: mt, data: data, err: err}:
		case <-t.closed:
			return
		}
		if err != nil {
			return
		}
	}
}

// tryRead returns the next already-buffered frame without blocking.
func (t *transport) tryRead() (frame, bool) {
	select {
	case f := <-t.frames:
		return f, true
	default:
		return frame{}, false
	}
}

func (t *transport) write(messageType int, data []byte) error {
	return t.conn.WriteMessage(messageType, data)
}

func (t *transport) close() {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	_ = t.conn.Close()
}

// isClosedTransportErr reports whether err indicates the underlying
// connection is gone and a reconnect should be triggered, as opposed to a
// transient or protocol-level error the pump logs and continues past.
func isClosedTransportErr(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsUnexpectedCloseError(err) {
		return true
	}
	if _, ok := err.(*websocket.CloseError); ok {
		return true
	}
	return err.Error() == "use of closed network connection" ||
		err.Error() == "websocket: close sent" ||
		err.Error() == "EOF"
}

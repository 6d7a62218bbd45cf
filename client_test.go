package nt4

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startFakeServer stands in for an NT4 server: every upgraded connection
// is pushed onto the returned channel so a test can drive it directly.
func startFakeServer(t *testing.T) (addr string, conns chan *websocket.Conn) {
	t.Helper()
	conns = make(chan *websocket.Conn, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(server.Close)

	return strings.TrimPrefix(server.URL, "http://"), conns
}

func recvConn(t *testing.T, ch chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a server-side connection")
		return nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

func testConfig() Config {
	return Config{ConnectTimeout: 30 * time.Millisecond}
}

func TestScenario_AnnounceThenValue(t *testing.T) {
	addr, conns := startFakeServer(t)

	client, err := NewWithConfig(addr, testConfig())
	require.NoError(t, err)
	defer client.Close()

	conn := recvConn(t, conns)
	readFrame(t, conn) // initial (empty) rehydration frame

	sub, err := client.Subscribe([]string{"/x"})
	require.NoError(t, err)
	defer sub.Close()
	readFrame(t, conn) // subscribe frame

	announce, err := encodeFrame(outgoingMessage{
		Method: "announce",
		Params: announceParams{Name: "/x", ID: 3, Type: "double"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, announce))

	value, err := encodeValueFrame(3, 1000, Double.Num(), 2.5)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, value))

	select {
	case md := <-sub.Values():
		assert.Equal(t, "/x", md.Topic)
		assert.Equal(t, uint32(1000), md.Timestamp)
		assert.Equal(t, Double, md.Type)
		assert.InDelta(t, 2.5, md.Value, 0.0001)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the value")
	}
}

func TestScenario_ValueBeforeAnnounce(t *testing.T) {
	addr, conns := startFakeServer(t)

	client, err := NewWithConfig(addr, testConfig())
	require.NoError(t, err)
	defer client.Close()

	conn := recvConn(t, conns)
	readFrame(t, conn) // initial rehydration

	sub, err := client.Subscribe([]string{"/x"})
	require.NoError(t, err)
	defer sub.Close()
	readFrame(t, conn) // subscribe frame

	value, err := encodeValueFrame(3, 1000, Double.Num(), 2.5)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, value))

	// Announce arrives a couple of ms later, still inside the 7ms retry
	// window the pump schedules for an unresolved topic id.
	time.Sleep(2 * time.Millisecond)
	announce, err := encodeFrame(outgoingMessage{
		Method: "announce",
		Params: announceParams{Name: "/x", ID: 3, Type: "double"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, announce))

	select {
	case md := <-sub.Values():
		assert.Equal(t, "/x", md.Topic)
		assert.InDelta(t, 2.5, md.Value, 0.0001)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the retried value")
	}
}

func TestScenario_ReconnectRehydration(t *testing.T) {
	addr, conns := startFakeServer(t)

	client, err := NewWithConfig(addr, testConfig())
	require.NoError(t, err)
	defer client.Close()

	conn1 := recvConn(t, conns)
	readFrame(t, conn1) // initial rehydration

	pub, err := client.PublishTopic("/a", Int, nil)
	require.NoError(t, err)
	readFrame(t, conn1) // publish frame

	periodic := 0.5
	sub, err := client.SubscribeWithOptions([]string{"/b"}, &SubscriptionOptions{PeriodicSeconds: &periodic})
	require.NoError(t, err)
	defer sub.Close()
	readFrame(t, conn1) // subscribe frame

	require.NoError(t, conn1.Close())

	conn2 := recvConn(t, conns)
	_, data := readFrame(t, conn2)

	envs, err := decodeIncomingFrame(data)
	require.NoError(t, err)
	require.Len(t, envs, 2)

	var sawPublish, sawSubscribe bool
	for _, env := range envs {
		switch env.Method {
		case "publish":
			var p publishParams
			require.NoError(t, unmarshalParams(env.Params, &p))
			assert.Equal(t, "/a", p.Name)
			assert.Equal(t, pub.PubUID, p.PubUID)
			sawPublish = true
		case "subscribe":
			var s subscribeParams
			require.NoError(t, unmarshalParams(env.Params, &s))
			assert.Equal(t, []string{"/b"}, s.Topics)
			require.NotNil(t, s.Options)
			require.NotNil(t, s.Options.PeriodicSeconds)
			assert.InDelta(t, 0.5, *s.Options.PeriodicSeconds, 0.0001)
			sawSubscribe = true
		default:
			t.Fatalf("unexpected method %q in rehydration frame", env.Method)
		}
	}
	assert.True(t, sawPublish)
	assert.True(t, sawSubscribe)
}

func TestScenario_OrphanSubscriptionPruning(t *testing.T) {
	addr, conns := startFakeServer(t)

	client, err := NewWithConfig(addr, testConfig())
	require.NoError(t, err)
	defer client.Close()

	conn := recvConn(t, conns)
	readFrame(t, conn) // initial rehydration

	sub, err := client.Subscribe([]string{"/x"})
	require.NoError(t, err)
	readFrame(t, conn) // subscribe frame

	// Simulate the consumer handle being dropped without calling Close:
	// flip the same flag the finalizer would.
	atomic.StoreInt32(sub.alive, 0)

	announce, err := encodeFrame(outgoingMessage{
		Method: "announce",
		Params: announceParams{Name: "/x", ID: 7, Type: "double"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, announce))

	value, err := encodeValueFrame(7, 500, Double.Num(), 1.0)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, value))

	require.Eventually(t, func() bool {
		client.subs.mu.Lock()
		defer client.subs.mu.Unlock()
		_, exists := client.subs.entries[sub.subuid]
		return !exists
	}, time.Second, 10*time.Millisecond)

	select {
	case _, ok := <-sub.Values():
		assert.False(t, ok, "orphaned subscription should not have received a value")
	default:
	}
}

func TestScenario_PublishBatching(t *testing.T) {
	addr, conns := startFakeServer(t)

	client, err := NewWithConfig(addr, testConfig())
	require.NoError(t, err)
	defer client.Close()

	conn := recvConn(t, conns)
	readFrame(t, conn) // initial rehydration

	persistent := true
	_, err = client.PublishTopic("/t", Double, &PublishProperties{Persistent: &persistent})
	require.NoError(t, err)

	_, data := readFrame(t, conn)
	envs, err := decodeIncomingFrame(data)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, "publish", envs[0].Method)
	assert.Equal(t, "setproperties", envs[1].Method)
}

func TestPublishThenUnpublish(t *testing.T) {
	addr, conns := startFakeServer(t)

	client, err := NewWithConfig(addr, testConfig())
	require.NoError(t, err)
	defer client.Close()

	conn := recvConn(t, conns)
	readFrame(t, conn)

	pub, err := client.PublishTopic("/a", Int, nil)
	require.NoError(t, err)
	readFrame(t, conn)

	_, ok := client.topics.lookupPublished(pub.PubUID)
	assert.True(t, ok)

	require.NoError(t, client.Unpublish(pub))
	readFrame(t, conn)

	_, ok = client.topics.lookupPublished(pub.PubUID)
	assert.False(t, ok)
}

package nt4

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const subProtocol = "networktables.first.wpi.edu"

// DefaultConnectTimeout is used when a Config's ConnectTimeout is zero.
const DefaultConnectTimeout = 1000 * time.Millisecond

// Config configures a Client. The four callbacks fire from the Receive
// Pump goroutine; they must be short and non-blocking — long-running work
// must be offloaded by the caller.
type Config struct {
	// ConnectTimeout bounds the initial connect and every reconnect
	// attempt.
	ConnectTimeout time.Duration

	// OnAnnounce fires when the server announces a topic.
	OnAnnounce func(Topic)
	// OnUnAnnounce fires when the server retracts a topic.
	OnUnAnnounce func(Topic)
	// OnDisconnect fires once per reconnect cycle, before the first retry.
	OnDisconnect func()
	// OnReconnect fires after a new transport is in place and rehydration
	// has been sent.
	OnReconnect func()

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client is a single, reconnecting NT4 session: one shared transport, the
// topic and subscription registries, and the clock sync state. Safe for
// concurrent use by multiple goroutines.
type Client struct {
	addr   string
	cfg    Config
	log    *slog.Logger

	mu sync.Mutex // guards t; held across one send or one non-blocking poll
	t  *transport

	topics *topicRegistry
	subs   *subscriptionRegistry
	clock  *clockState

	pubIDs *idCounter
	subIDs *idCounter

	lastClockUpdate time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// New opens a session to addr (host:port) with default configuration.
func New(addr string) (*Client, error) {
	return NewWithConfig(addr, Config{})
}

// NewWithConfig opens a session to addr with the given configuration.
func NewWithConfig(addr string, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	c := &Client{
		addr:   addr,
		cfg:    cfg,
		log:    cfg.Logger.With("component", "nt4"),
		topics: newTopicRegistry(),
		subs:   newSubscriptionRegistry(),
		clock:  newClockState(),
		pubIDs: newIDCounter(),
		subIDs: newIDCounter(),
		done:   make(chan struct{}),
	}

	conn, err := dial(addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, newError(KindConnectFailure, "connect", err)
	}

	c.t = newTransport(conn)
	c.rehydrate()

	c.wg.Add(1)
	go c.pumpLoop()

	return c, nil
}

func randomClientName() string {
	return fmt.Sprintf("nt4go-client-%d", rand.Uint32())
}

func dial(addr string, timeout time.Duration) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/nt/" + randomClientName()}
	dialer := &websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{subProtocol},
	}
	conn, _, err := dialer.Dial(u.String(), nil)
	return conn, err
}

// Close tears down the session: the receive pump stops and the transport
// is closed. A Client must not be used after Close.
func (c *Client) Close() error {
	close(c.done)
	c.mu.Lock()
	if c.t != nil {
		c.t.close()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

// AnnouncedTopics returns a point-in-time snapshot of every
// server-announced topic.
func (c *Client) AnnouncedTopics() []Topic {
	return c.topics.Snapshot()
}

// PublishTopic allocates a pubuid and announces a new published topic to
// the server. If properties are supplied they're sent as a second,
// same-frame setproperties message so the server observes both
// atomically.
func (c *Client) PublishTopic(name string, typ Type, properties *PublishProperties) (PublishedTopic, error) {
	pubuid := c.pubIDs.allocate()
	pt := PublishedTopic{Name: name, PubUID: pubuid, Type: typ, Properties: properties}

	msgs := []outgoingMessage{newPublishMessage(pt)}
	if properties != nil {
		msgs = append(msgs, newSetPropertiesMessage(name, *properties))
	}

	if err := c.sendControl(msgs...); err != nil {
		return PublishedTopic{}, err
	}

	c.topics.addPublished(pt)
	return pt, nil
}

// Unpublish retracts a previously published topic. The client-published
// entry is removed regardless of whether the server acknowledges.
func (c *Client) Unpublish(topic PublishedTopic) error {
	err := c.sendControl(newUnpublishMessage(topic.asUnpublish()))
	c.topics.removePublished(topic.PubUID)
	return err
}

// SetProperties updates a published topic's property bag.
func (c *Client) SetProperties(name string, update PublishProperties) error {
	return c.sendControl(newSetPropertiesMessage(name, update))
}

// Subscribe subscribes to one or more topic names (exact match) with
// default options.
func (c *Client) Subscribe(topics []string) (*Subscription, error) {
	return c.SubscribeWithOptions(topics, nil)
}

// SubscribeWithOptions subscribes with explicit server-side options
// (periodic rate, all-updates, topics-only, prefix match).
func (c *Client) SubscribeWithOptions(topics []string, opts *SubscriptionOptions) (*Subscription, error) {
	subuid := int32(c.subIDs.allocate())

	if err := c.sendControl(newSubscribeMessage(topics, subuid, opts)); err != nil {
		return nil, err
	}

	return c.subs.add(subuid, topics, opts, c), nil
}

// Unsubscribe tears down a subscription explicitly: the server is told to
// stop, and the local registry entry is removed.
func (c *Client) Unsubscribe(sub *Subscription) error {
	sub.Close()
	return nil
}

// handleSubscriptionClosed is invoked by Subscription.Close. It
// best-effort notifies the server and always removes the local entry.
func (c *Client) handleSubscriptionClosed(subuid int32) {
	c.subs.remove(subuid)
	_ = c.sendControl(newUnsubscribeMessage(subuid))
}

// PublishValue publishes a value on topic using the current server time.
func (c *Client) PublishValue(topic PublishedTopic, value any) error {
	return c.PublishValueWithTimestamp(topic, c.clock.serverTimeMicros(), value)
}

// PublishValueWithTimestamp publishes a value with an explicit server
// timestamp. The caller is responsible for value matching topic.Type.
func (c *Client) PublishValueWithTimestamp(topic PublishedTopic, timestampMicros uint32, value any) error {
	data, err := encodeValueFrame(int32(topic.PubUID), timestampMicros, topic.Type.Num(), value)
	if err != nil {
		return newError(KindEncodeFailure, "publish_value", err)
	}
	return c.sendBinary(data)
}

// sendControl encodes one or more control messages into a single text
// frame and sends it.
func (c *Client) sendControl(messages ...outgoingMessage) error {
	data, err := encodeFrame(messages...)
	if err != nil {
		return newError(KindEncodeFailure, "encode_control_frame", err)
	}
	return c.sendText(data)
}

func (c *Client) evictUnsubscribe(subuids []int32) {
	for _, subuid := range subuids {
		_ = c.sendControl(newUnsubscribeMessage(subuid))
	}
}

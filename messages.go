package nt4

import (
	"encoding/json"
	"fmt"
)

// PublishProperties is the optional property bag attached to a publish or
// setproperties message. Persistent and Retained are the two properties
// the protocol names explicitly; Extra carries any additional
// string-keyed JSON values the server or a peer client attaches.
type PublishProperties struct {
	Persistent *bool          `json:"persistent,omitempty"`
	Retained   *bool          `json:"retained,omitempty"`
	Extra      map[string]any `json:"-"`
}

// MarshalJSON flattens Extra alongside the named fields, mirroring the
// Rust source's `#[serde(flatten)] rest: HashMap<String, Value>`.
func (p PublishProperties) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.Persistent != nil {
		out["persistent"] = *p.Persistent
	}
	if p.Retained != nil {
		out["retained"] = *p.Retained
	}
	return json.Marshal(out)
}

func (p *PublishProperties) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["persistent"].(bool); ok {
		p.Persistent = &v
		delete(raw, "persistent")
	}
	if v, ok := raw["retained"].(bool); ok {
		p.Retained = &v
		delete(raw, "retained")
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// SubscriptionOptions controls server-side behavior of a subscription.
// All fields are optional; the server applies its own defaults for
// anything left nil.
type SubscriptionOptions struct {
	PeriodicSeconds *float64 `json:"periodic,omitempty"`
	AllUpdates      *bool    `json:"all,omitempty"`
	TopicsOnly      *bool    `json:"topicsonly,omitempty"`
	Prefix          *bool    `json:"prefix,omitempty"`
}

// prefixMatch reports whether these options request prefix-match
// semantics instead of exact-name matching.
func (o *SubscriptionOptions) prefixMatch() bool {
	return o != nil && o.Prefix != nil && *o.Prefix
}

type outgoingMessage struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type publishParams struct {
	Name       string             `json:"name"`
	PubUID     uint32             `json:"pubuid"`
	Type       Type               `json:"type"`
	Properties *PublishProperties `json:"properties,omitempty"`
}

type unpublishParams struct {
	PubUID uint32 `json:"pubuid"`
}

type setPropertiesParams struct {
	Name   string            `json:"name"`
	Update PublishProperties `json:"update"`
}

type subscribeParams struct {
	Topics  []string             `json:"topics"`
	SubUID  int32                `json:"subuid"`
	Options *SubscriptionOptions `json:"options,omitempty"`
}

type unsubscribeParams struct {
	SubUID int32 `json:"subuid"`
}

func newPublishMessage(t PublishedTopic) outgoingMessage {
	return outgoingMessage{
		Method: "publish",
		Params: publishParams{Name: t.Name, PubUID: t.PubUID, Type: t.Type, Properties: t.Properties},
	}
}

func newUnpublishMessage(pubuid uint32) outgoingMessage {
	return outgoingMessage{Method: "unpublish", Params: unpublishParams{PubUID: pubuid}}
}

func newSetPropertiesMessage(name string, update PublishProperties) outgoingMessage {
	return outgoingMessage{Method: "setproperties", Params: setPropertiesParams{Name: name, Update: update}}
}

func newSubscribeMessage(topics []string, subuid int32, opts *SubscriptionOptions) outgoingMessage {
	return outgoingMessage{Method: "subscribe", Params: subscribeParams{Topics: topics, SubUID: subuid, Options: opts}}
}

func newUnsubscribeMessage(subuid int32) outgoingMessage {
	return outgoingMessage{Method: "unsubscribe", Params: unsubscribeParams{SubUID: subuid}}
}

// encodeFrame marshals zero or more outgoing control messages into the
// single JSON array the wire protocol expects per text frame. Even an
// empty rehydration frame is sent as "[]", never "null".
func encodeFrame(messages ...outgoingMessage) ([]byte, error) {
	if messages == nil {
		messages = []outgoingMessage{}
	}
	return json.Marshal(messages)
}

type incomingEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type announceParams struct {
	Name       string            `json:"name"`
	ID         int32             `json:"id"`
	PubUID     *int32            `json:"pubuid,omitempty"`
	Type       string            `json:"type"`
	Properties PublishProperties `json:"properties"`
}

type unannounceParams struct {
	Name string `json:"name"`
	ID   int32  `json:"id"`
}

// decodeIncomingFrame parses a single text frame's JSON array of control
// messages into their typed envelopes.
func decodeIncomingFrame(data []byte) ([]incomingEnvelope, error) {
	var envelopes []incomingEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("decode control frame: %w", err)
	}
	return envelopes, nil
}

// unmarshalParams decodes one envelope's params into a concrete struct.
func unmarshalParams(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

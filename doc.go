// Package nt4 implements the client side of the NetworkTables 4 (NT4)
// pub/sub protocol used across the FRC robotics ecosystem to exchange
// telemetry between a robot program and dashboards or coprocessors.
//
// A Client owns a single, reconnecting WebSocket session. It publishes
// values on named topics, subscribes to topic name patterns, and maintains
// a monotonic, drift-corrected time base so every outbound value carries a
// server-relative microsecond timestamp.
//
// Transport framing and the WebSocket handshake are provided by
// github.com/gorilla/websocket; JSON control messages use encoding/json;
// binary value frames use github.com/vmihailenco/msgpack/v5. None of
// these are reimplemented here — the session core wires them together.
package nt4

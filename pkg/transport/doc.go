// Package transport provides the datagram drivers a session runs on.
//
// A driver reports remote endpoints as connections with driver-assigned IDs
// and buffers connect, disconnect and data events until the owner drains
// them with Poll. Three drivers are provided:
//
//   - Memory: an in-process hub with optional loss injection, for tests.
//   - UDP: one socket per transport; a host maps each new remote address to
//     a connection.
//   - WebSocket: binary messages over gorilla/websocket, one message per
//     datagram.
package transport

// Package session runs the connection handshake and the per-peer
// reliability state on top of a transport.
//
// A Host accepts clients through a challenge handshake:
//
//	client                     host
//	ConnectionRequest   ->
//	                    <-     ConnectionChallenge
//	ChallengeAnswer     ->
//	                    <-     ConnectionAccepted | ConnectionDenied
//
// Connection-phase packets are unreliable; the client repeats its last
// packet every retry interval until the host answers or ConnectionTimeout
// passes. Once authenticated, data travels through a reliability.Endpoint
// per peer and is dispatched to the session's dispatch.Registry.
//
// Neither Host nor Client starts goroutines. The owner calls PumpIncoming
// and PumpOutgoing (or Tick) from one goroutine; lifecycle events are
// delivered to Config.OnEvent on that goroutine. Host.Status is the only
// method safe to call concurrently.
package session

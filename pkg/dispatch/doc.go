// Package dispatch routes incoming data payloads to application handlers.
//
// Payloads travel with the 32-bit FNV-1 hash of an identifier instead of the
// identifier itself. A Registry maps each hash back to the identifier it was
// registered with and to the handlers subscribed to it. Two identifiers that
// hash to the same value cannot both be registered.
//
// Typed records are structs implementing serializer.Marshaler and
// serializer.Unmarshaler plus a RecordName method:
//
//	type Move struct{ X, Y float32 }
//
//	func (Move) RecordName() string { return "game.Move" }
//
//	sub, err := dispatch.RegisterRecord(reg, func(ctx context.Context, from protocol.PeerID, m *Move) error {
//	    ...
//	})
package dispatch

package dispatch

import (
	"context"
	"fmt"

	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/serializer"
)

// Record is an application struct sent as a typed payload. RecordName is
// the stable identifier both sides hash; it must not depend on field values.
type Record interface {
	serializer.Marshaler
	RecordName() string
}

// RecordPtr constrains a pointer to T that can decode itself.
type RecordPtr[T any] interface {
	*T
	serializer.Unmarshaler
	RecordName() string
}

// RecordNameOf returns the identifier of record type T.
func RecordNameOf[T any, PT RecordPtr[T]]() string {
	return PT(new(T)).RecordName()
}

// RegisterRecord registers fn for typed records of type T. Payloads are
// decoded with the registry's serializer settings; a decode failure is
// reported like a handler error.
func RegisterRecord[T any, PT RecordPtr[T]](r *Registry, fn func(ctx context.Context, sender protocol.PeerID, rec *T) error) (Subscription, error) {
	if fn == nil {
		return Subscription{}, ErrNilHandler
	}
	name := RecordNameOf[T, PT]()
	settings := r.Settings()
	return r.Register(name, HandlerFunc(func(ctx context.Context, sender protocol.PeerID, payload []byte) error {
		rec := new(T)
		if err := serializer.Unmarshal(payload, PT(rec), settings); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		return fn(ctx, sender, rec)
	}))
}

// EncodeRecord serialises rec and returns its identifier hash with the bytes.
func EncodeRecord(rec Record, settings serializer.Settings) (uint32, []byte) {
	return Hash(rec.RecordName()), serializer.Marshal(rec, settings)
}

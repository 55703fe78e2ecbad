package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/serializer"
)

type move struct {
	Pos   serializer.Vector3
	Rot   serializer.Quaternion
	Label string
}

func (move) RecordName() string { return "test.Move" }

func (m move) MarshalPacket(w *serializer.Writer) {
	w.WriteVector3(m.Pos)
	w.WriteQuaternion(m.Rot)
	w.WriteString(m.Label)
}

func (m *move) UnmarshalPacket(r *serializer.Reader) error {
	var err error
	if m.Pos, err = r.ReadVector3(); err != nil {
		return err
	}
	if m.Rot, err = r.ReadQuaternion(); err != nil {
		return err
	}
	m.Label, err = r.ReadString()
	return err
}

func TestRegisterRecord(t *testing.T) {
	obs := &fakeObserver{}
	reg := NewRegistry(WithObserver(obs))

	var got []*move
	var from protocol.PeerID
	sub, err := RegisterRecord(reg, func(_ context.Context, sender protocol.PeerID, m *move) error {
		from = sender
		got = append(got, m)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Hash() != Hash("test.Move") {
		t.Errorf("subscription hash = %#08x, want hash of test.Move", sub.Hash())
	}
	if name := RecordNameOf[move](); name != "test.Move" {
		t.Errorf("RecordNameOf = %q", name)
	}

	in := move{Pos: serializer.Vector3{X: 1, Y: 2, Z: 3}, Rot: serializer.IdentityQuaternion, Label: "dash"}
	hash, payload := EncodeRecord(in, reg.Settings())
	reg.Dispatch(context.Background(), hash, 9, payload)

	if len(got) != 1 || *got[0] != in || from != 9 {
		t.Fatalf("handler got %v from %d, want %+v from 9", got, from, in)
	}

	// A truncated payload is a handler failure, not a panic.
	reg.Dispatch(context.Background(), hash, 9, payload[:4])
	if len(got) != 1 {
		t.Error("handler ran for undecodable payload")
	}
	if len(obs.got) != 2 || !obs.got[1].failed {
		t.Errorf("observations = %v, want second dispatch failed", obs.got)
	}
}

func TestRegisterRecordUsesRegistrySettings(t *testing.T) {
	settings := serializer.DefaultSettings()
	settings.CompressFloats = true
	settings.CompressQuaternions = true
	reg := NewRegistry(WithSettings(settings))

	var got *move
	if _, err := RegisterRecord(reg, func(_ context.Context, _ protocol.PeerID, m *move) error {
		got = m
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	in := move{Pos: serializer.Vector3{X: 10.004, Y: -3, Z: 0.5}, Rot: serializer.IdentityQuaternion, Label: "c"}
	hash, payload := EncodeRecord(in, settings)
	if raw := serializer.Marshal(in, serializer.DefaultSettings()); len(payload) >= len(raw) {
		t.Errorf("compressed payload %d bytes, raw %d", len(payload), len(raw))
	}
	reg.Dispatch(context.Background(), hash, 2, payload)
	if got == nil {
		t.Fatal("handler did not run")
	}
	if d := got.Pos.X - in.Pos.X; d > 0.005 || d < -0.005 {
		t.Errorf("Pos.X = %v, want within 0.005 of %v", got.Pos.X, in.Pos.X)
	}
}

func TestRegisterRecordNil(t *testing.T) {
	reg := NewRegistry()
	if _, err := RegisterRecord[move](reg, nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("error = %v, want ErrNilHandler", err)
	}
}

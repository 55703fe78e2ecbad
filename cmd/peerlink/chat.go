package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"

	"github.com/vango-dev/peerlink/pkg/dispatch"
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/serializer"
)

// chatMessage is the line-of-text record the CLI exchanges.
type chatMessage struct {
	Text string
}

func (chatMessage) RecordName() string { return "peerlink.Chat" }

func (m chatMessage) MarshalPacket(w *serializer.Writer) {
	w.WriteString(m.Text)
}

func (m *chatMessage) UnmarshalPacket(r *serializer.Reader) error {
	var err error
	m.Text, err = r.ReadString()
	return err
}

// registerChat logs every chat message received on reg.
func registerChat(reg *dispatch.Registry, logger *slog.Logger, names func(protocol.PeerID) string) error {
	_, err := dispatch.RegisterRecord(reg, func(_ context.Context, sender protocol.PeerID, m *chatMessage) error {
		logger.Info("chat", "from", names(sender), "peer_id", sender, "text", m.Text)
		return nil
	})
	return err
}

// readLines sends each line of r on the returned channel, which closes at
// EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				ch <- line
			}
		}
	}()
	return ch
}

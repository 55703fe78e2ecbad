package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// DefaultKey keys the default authenticator. Peers using it accept each
// other; it only keeps unrelated programs from connecting by accident.
const DefaultKey = "peerlink"

// Authenticator turns a host challenge into a fixed-size answer and checks
// answers. Implementations must be deterministic.
type Authenticator interface {
	Answer(challenge uint64) [protocol.AnswerSize]byte
	Verify(challenge uint64, answer [protocol.AnswerSize]byte) bool
}

// HMACAuthenticator answers with HMAC-SHA256 of the big-endian challenge
// under a shared key.
type HMACAuthenticator struct {
	key []byte
}

// NewHMACAuthenticator creates an authenticator keyed with key.
func NewHMACAuthenticator(key []byte) *HMACAuthenticator {
	return &HMACAuthenticator{key: append([]byte(nil), key...)}
}

// Answer implements Authenticator.
func (a *HMACAuthenticator) Answer(challenge uint64) [protocol.AnswerSize]byte {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], challenge)
	mac := hmac.New(sha256.New, a.key)
	mac.Write(msg[:])
	var out [protocol.AnswerSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Verify implements Authenticator.
func (a *HMACAuthenticator) Verify(challenge uint64, answer [protocol.AnswerSize]byte) bool {
	want := a.Answer(challenge)
	return hmac.Equal(want[:], answer[:])
}

func newChallenge() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

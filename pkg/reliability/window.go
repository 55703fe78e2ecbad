package reliability

// windowSize is the number of recent sequences a seqWindow remembers. It
// divides 65536 so the bit index of a sequence never changes across wraps.
const windowSize = 1024

// newer reports whether sequence a is more recent than b, taking u16
// wrap-around into account.
func newer(a, b uint16) bool {
	return (a > b && a-b <= 32768) || (a < b && b-a > 32768)
}

// seqWindow remembers which of the last windowSize sequences were seen.
// Sequences older than the window are treated as seen.
type seqWindow struct {
	init bool
	top  uint16
	bits [windowSize / 64]uint64
}

func (w *seqWindow) bit(seq uint16) (int, uint64) {
	i := int(seq % windowSize)
	return i / 64, 1 << (i % 64)
}

// Seen reports whether seq was marked or has fallen out of the window.
func (w *seqWindow) Seen(seq uint16) bool {
	if !w.init || newer(seq, w.top) {
		return false
	}
	if w.top-seq >= windowSize {
		return true
	}
	word, mask := w.bit(seq)
	return w.bits[word]&mask != 0
}

// Mark records seq, sliding the window forward when seq is the newest yet.
func (w *seqWindow) Mark(seq uint16) {
	switch {
	case !w.init:
		w.init = true
		w.bits = [windowSize / 64]uint64{}
		w.top = seq
	case newer(seq, w.top):
		shift := seq - w.top
		if shift >= windowSize {
			w.bits = [windowSize / 64]uint64{}
		} else {
			for i := uint16(1); i <= shift; i++ {
				word, mask := w.bit(w.top + i)
				w.bits[word] &^= mask
			}
		}
		w.top = seq
	case w.top-seq >= windowSize:
		return
	}
	word, mask := w.bit(seq)
	w.bits[word] |= mask
}

// Reset forgets every sequence.
func (w *seqWindow) Reset() {
	*w = seqWindow{}
}

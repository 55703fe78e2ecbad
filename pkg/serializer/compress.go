package serializer

import "math"

// WriteCompressedFloat quantises v into Settings.FloatBits bits. Values
// outside [FloatMin, FloatMax] are clamped and NaN encodes as FloatMin.
func (w *Writer) WriteCompressedFloat(v float64) {
	s := w.settings
	w.WriteBits(quantiseFloat(v, s), s.FloatBits())
}

// ReadCompressedFloat reads a value written by WriteCompressedFloat.
func (r *Reader) ReadCompressedFloat() (float64, error) {
	s := r.settings
	q, err := r.ReadBits(s.FloatBits())
	if err != nil {
		return 0, err
	}
	return dequantiseFloat(q, s), nil
}

func quantiseFloat(v float64, s Settings) uint64 {
	if math.IsNaN(v) {
		v = s.FloatMin
	}
	v = math.Max(s.FloatMin, math.Min(s.FloatMax, v))
	steps := s.FloatSteps()
	q := math.Round((v - s.FloatMin) / (s.FloatMax - s.FloatMin) * float64(steps))
	return min(uint64(q), steps)
}

func dequantiseFloat(q uint64, s Settings) float64 {
	steps := s.FloatSteps()
	q = min(q, steps)
	return s.FloatMin + float64(q)*(s.FloatMax-s.FloatMin)/float64(steps)
}

// sqrt1_2 bounds every component other than the largest of a unit quaternion.
const sqrt1_2 = math.Sqrt2 / 2

// WriteCompressedQuaternion writes q with smallest-three encoding. q is
// normalised first; a zero quaternion encodes as identity.
func (w *Writer) WriteCompressedQuaternion(q Quaternion) {
	b := uint(w.settings.BitsPerComponent)
	c := q.normalized().components()

	largest := 0
	for i := 1; i < 4; i++ {
		if math.Abs(c[i]) > math.Abs(c[largest]) {
			largest = i
		}
	}
	// q and -q are the same rotation; flip so the dropped component is positive.
	if c[largest] < 0 {
		for i := range c {
			c[i] = -c[i]
		}
	}

	maxv := float64(uint64(1)<<b - 1)
	packed := uint64(largest)
	for i := 0; i < 4; i++ {
		if i == largest {
			continue
		}
		v := math.Max(-sqrt1_2, math.Min(sqrt1_2, c[i]))
		packed = packed<<b | uint64(math.Round((v+sqrt1_2)/(2*sqrt1_2)*maxv))
	}
	w.WriteBits(packed, 2+3*b)
}

// ReadCompressedQuaternion reads a value written by WriteCompressedQuaternion.
func (r *Reader) ReadCompressedQuaternion() (Quaternion, error) {
	b := uint(r.settings.BitsPerComponent)
	packed, err := r.ReadBits(2 + 3*b)
	if err != nil {
		return Quaternion{}, err
	}
	largest := int(packed >> (3 * b))
	mask := uint64(1)<<b - 1
	maxv := float64(mask)

	var c [4]float64
	var sum float64
	shift := 2 * b
	for i := 0; i < 4; i++ {
		if i == largest {
			continue
		}
		q := (packed >> shift) & mask
		v := float64(q)/maxv*(2*sqrt1_2) - sqrt1_2
		c[i] = v
		sum += v * v
		shift -= b
	}
	c[largest] = math.Sqrt(math.Max(0, 1-sum))
	return quaternionFrom(c).normalized(), nil
}

func (q Quaternion) components() [4]float64 {
	return [4]float64{float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)}
}

func quaternionFrom(c [4]float64) Quaternion {
	return Quaternion{X: float32(c[0]), Y: float32(c[1]), Z: float32(c[2]), W: float32(c[3])}
}

// normalized returns q scaled to unit length, or identity when q is degenerate.
func (q Quaternion) normalized() Quaternion {
	c := q.components()
	n := math.Sqrt(c[0]*c[0] + c[1]*c[1] + c[2]*c[2] + c[3]*c[3])
	if n < 1e-6 || math.IsNaN(n) || math.IsInf(n, 0) {
		return IdentityQuaternion
	}
	for i := range c {
		c[i] /= n
	}
	return quaternionFrom(c)
}

package serializer

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Bounds for BitsPerComponent in quaternion compression.
const (
	MinBitsPerComponent = 2
	MaxBitsPerComponent = 20
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("serializer: invalid settings")

// Settings controls the optional lossy encodings. A Writer and the Reader
// that decodes its output must use equal Settings.
type Settings struct {
	// CompressFloats quantises values written with WriteFloat.
	CompressFloats bool

	// FloatMin and FloatMax bound the representable range. Inputs outside
	// the range are clamped.
	FloatMin float64
	FloatMax float64

	// FloatResolution is the largest step between two representable values.
	FloatResolution float64

	// CompressQuaternions enables smallest-three encoding in WriteQuaternion.
	CompressQuaternions bool

	// BitsPerComponent is the precision of each of the three stored
	// quaternion components.
	BitsPerComponent int
}

// DefaultSettings returns Settings with compression disabled and sensible
// ranges pre-filled, so enabling a flag is enough to turn compression on.
func DefaultSettings() Settings {
	return Settings{
		CompressFloats:      false,
		FloatMin:            -1000,
		FloatMax:            1000,
		FloatResolution:     0.01,
		CompressQuaternions: false,
		BitsPerComponent:    10,
	}
}

// Validate reports configurations that cannot be encoded.
func (s Settings) Validate() error {
	if s.CompressFloats {
		if math.IsNaN(s.FloatMin) || math.IsNaN(s.FloatMax) || math.IsInf(s.FloatMin, 0) || math.IsInf(s.FloatMax, 0) {
			return fmt.Errorf("%w: float range must be finite", ErrInvalidSettings)
		}
		if s.FloatMax <= s.FloatMin {
			return fmt.Errorf("%w: FloatMax (%v) must exceed FloatMin (%v)", ErrInvalidSettings, s.FloatMax, s.FloatMin)
		}
		if !(s.FloatResolution > 0) {
			return fmt.Errorf("%w: FloatResolution must be positive", ErrInvalidSettings)
		}
		steps := math.Ceil((s.FloatMax - s.FloatMin) / s.FloatResolution)
		if steps > math.MaxUint32 {
			return fmt.Errorf("%w: float range needs more than 32 bits at this resolution", ErrInvalidSettings)
		}
	}
	if s.CompressQuaternions {
		if s.BitsPerComponent < MinBitsPerComponent || s.BitsPerComponent > MaxBitsPerComponent {
			return fmt.Errorf("%w: BitsPerComponent must be in [%d, %d], got %d",
				ErrInvalidSettings, MinBitsPerComponent, MaxBitsPerComponent, s.BitsPerComponent)
		}
	}
	return nil
}

// FloatSteps returns the number of quantisation steps across the float range.
func (s Settings) FloatSteps() uint64 {
	return uint64(math.Ceil((s.FloatMax - s.FloatMin) / s.FloatResolution))
}

// FloatBits returns the number of bits a compressed float occupies,
// ceil(log2(steps+1)).
func (s Settings) FloatBits() uint {
	return uint(bits.Len64(s.FloatSteps()))
}

// QuaternionBits returns the number of bits a compressed quaternion occupies.
func (s Settings) QuaternionBits() uint {
	return 2 + 3*uint(s.BitsPerComponent)
}

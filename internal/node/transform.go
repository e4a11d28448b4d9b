package node

import (
	"strconv"
)

// Forward converts a native wire value into consumer units: invert first,
// then remap. ok is false when the value cannot be transformed, in which case
// the input is returned unchanged.
func (s *Sensor) Forward(value string) (out string, ok bool) {
	if !s.transforms() {
		return value, false
	}
	v := value
	if s.Invert {
		v = invertLogical(v)
	}
	if s.Remap.Enabled {
		mapped, ok := s.Remap.apply(v, s.Remap.FromMin, s.Remap.FromMax, s.Remap.ToMin, s.Remap.ToMax)
		if !ok {
			return value, false
		}
		v = mapped
	}
	return v, true
}

// Reverse converts a consumer value back into native units. It undoes
// Forward: unremap first, then invert.
func (s *Sensor) Reverse(value string) (out string, ok bool) {
	if !s.transforms() {
		return value, false
	}
	v := value
	if s.Remap.Enabled {
		mapped, ok := s.Remap.apply(v, s.Remap.ToMin, s.Remap.ToMax, s.Remap.FromMin, s.Remap.FromMax)
		if !ok {
			return value, false
		}
		v = mapped
	}
	if s.Invert {
		v = invertLogical(v)
	}
	return v, true
}

func (s *Sensor) transforms() bool {
	return s != nil && (s.Invert || s.Remap.Enabled)
}

// apply maps value from [inMin, inMax] to [outMin, outMax]. A degenerate
// input range has no inverse and is refused.
func (Remap) apply(value string, inMin, inMax, outMin, outMax float64) (string, bool) {
	if inMax == inMin {
		return "", false
	}
	x, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", false
	}
	y := outMin + (x-inMin)*(outMax-outMin)/(inMax-inMin)
	return strconv.FormatFloat(y, 'f', -1, 64), true
}

// invertLogical swaps "0" and "1". Other values are left as they are.
func invertLogical(v string) string {
	switch v {
	case "0":
		return "1"
	case "1":
		return "0"
	default:
		return v
	}
}

package klv

import (
	"math"

	"github.com/pkg/errors"
)

// ScalingRule describes how one tag's floating-point value maps onto the
// wire: multiply by Scale, round to nearest, and the result must fit
// [Min, Max] within a Width-byte big-endian integer.
type ScalingRule struct {
	Tag    Tag
	Width  int
	Signed bool
	Scale  float64
	Min    int64
	Max    int64
}

// rules is consulted by both the encode and decode paths. The timestamp
// (tag 2) is not listed: it is an unscaled uint64 handled directly.
var rules = map[Tag]ScalingRule{
	TagRoll:      {Tag: TagRoll, Width: 2, Signed: true, Scale: 100, Min: -18000, Max: 18000},
	TagPitch:     {Tag: TagPitch, Width: 2, Signed: true, Scale: 100, Min: -9000, Max: 9000},
	TagHeading:   {Tag: TagHeading, Width: 2, Signed: false, Scale: 100, Min: 0, Max: 36000},
	TagLatitude:  {Tag: TagLatitude, Width: 4, Signed: true, Scale: 1e7, Min: -900000000, Max: 900000000},
	TagLongitude: {Tag: TagLongitude, Width: 4, Signed: true, Scale: 1e7, Min: -1800000000, Max: 1800000000},
	TagAltitude:  {Tag: TagAltitude, Width: 2, Signed: false, Scale: 10, Min: 0, Max: 65535},
}

// Rule returns the scaling rule for a tag.
func Rule(tag Tag) (ScalingRule, bool) {
	r, ok := rules[tag]
	return r, ok
}

// Scale converts a raw value to its integer wire representation. Out of
// range input is a *ValidationError, never a silent clamp.
func Scale(tag Tag, raw float64) (int64, error) {
	r, ok := rules[tag]
	if !ok {
		return 0, errors.Errorf("no scaling rule for tag %d", tag)
	}
	scaled := int64(math.Round(raw * r.Scale))
	if scaled < r.Min || scaled > r.Max {
		return 0, &ValidationError{Tag: tag, Value: raw}
	}
	return scaled, nil
}

// Unscale converts a wire integer back to the raw value, inverting Scale.
func Unscale(tag Tag, wire int64) float64 {
	return float64(wire) / rules[tag].Scale
}

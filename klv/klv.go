// Package klv implements the MISB ST0601 Local Data Set subset carried by
// the forwarder: a fixed 16-byte universal key, a BER-encoded payload length
// and a sequence of single-byte tag / single-byte length / fixed-width
// big-endian value items.
package klv

import (
	"fmt"

	"github.com/pkg/errors"
)

// Tag is a MISB ST0601 local set tag number.
type Tag uint8

const (
	TagTimestamp Tag = 2  // Unix timestamp, microseconds
	TagRoll      Tag = 5  // platform roll, degrees
	TagPitch     Tag = 6  // platform pitch, degrees
	TagHeading   Tag = 7  // platform heading, degrees
	TagLatitude  Tag = 13 // sensor latitude, degrees
	TagLongitude Tag = 14 // sensor longitude, degrees
	TagAltitude  Tag = 15 // sensor altitude MSL, meters
)

// UniversalKey prefixes every MISB 0601 packet.
var UniversalKey = [16]byte{
	0x06, 0x0E, 0x2B, 0x34, 0x02, 0x0B, 0x01, 0x01,
	0x0E, 0x01, 0x03, 0x01, 0x01, 0x00, 0x00, 0x00,
}

var (
	ErrEmptyPayload      = errors.New("empty payload")
	ErrInvalidKey        = errors.New("invalid universal key")
	ErrUnsupportedLength = errors.New("unsupported BER length form")
	ErrTruncated         = errors.New("truncated packet")
)

// ValidationError reports a field value outside its MISB-defined range. The
// encoder recovers from GPS-group failures by omitting the group; a failure
// on a mandatory attitude field fails the whole packet.
type ValidationError struct {
	Tag   Tag
	Value float64
}

func (e *ValidationError) Error() string {
	r := rules[e.Tag]
	return fmt.Sprintf("tag %d: value %v scales outside [%d, %d]", e.Tag, e.Value, r.Min, r.Max)
}

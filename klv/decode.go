package klv

import (
	"bytes"
	"encoding/binary"

	"github.com/jd3nn1s/parrotfwd"
	"github.com/pkg/errors"
)

// Decode parses a MISB 0601 packet back into a telemetry sample. Unknown
// tags are skipped using their declared length. GPSFixed is inferred: true
// iff all three GPS tags were present. On any error the zero sample is
// returned, never partially-populated output.
func Decode(b []byte) (parrotfwd.Telemetry, error) {
	var t parrotfwd.Telemetry

	if len(b) < len(UniversalKey) || !bytes.Equal(b[:len(UniversalKey)], UniversalKey[:]) {
		return t, ErrInvalidKey
	}

	n, consumed, err := decodeBERLength(b[len(UniversalKey):])
	if err != nil {
		return t, err
	}
	start := len(UniversalKey) + consumed
	if len(b) < start+n {
		return t, errors.Wrapf(ErrTruncated, "declared payload %d bytes, have %d", n, len(b)-start)
	}
	payload := b[start : start+n]

	var gotLat, gotLon, gotAlt bool
	for i := 0; i < len(payload); {
		if len(payload)-i < 2 {
			return parrotfwd.Telemetry{}, errors.Wrap(ErrTruncated, "partial item header")
		}
		tag := Tag(payload[i])
		length := int(payload[i+1])
		i += 2
		if i+length > len(payload) {
			return parrotfwd.Telemetry{}, errors.Wrapf(ErrTruncated, "item for tag %d overruns payload", tag)
		}
		value := payload[i : i+length]
		i += length

		if tag == TagTimestamp {
			if length != 8 {
				return parrotfwd.Telemetry{}, errors.Wrapf(ErrTruncated, "tag %d: expected 8 value bytes, got %d", tag, length)
			}
			t.TimestampUS = binary.BigEndian.Uint64(value)
			continue
		}

		r, ok := rules[tag]
		if !ok {
			// forward-compatible: unrecognized tag, cursor already advanced
			continue
		}
		if length != r.Width {
			return parrotfwd.Telemetry{}, errors.Wrapf(ErrTruncated, "tag %d: expected %d value bytes, got %d", tag, r.Width, length)
		}
		v := Unscale(tag, unpackInt(r, value))
		switch tag {
		case TagRoll:
			t.Roll = v
		case TagPitch:
			t.Pitch = v
		case TagHeading:
			t.Heading = v
		case TagLatitude:
			t.Latitude = v
			gotLat = true
		case TagLongitude:
			t.Longitude = v
			gotLon = true
		case TagAltitude:
			t.Altitude = v
			gotAlt = true
		}
	}

	t.GPSFixed = gotLat && gotLon && gotAlt
	if !t.GPSFixed {
		t.Latitude, t.Longitude, t.Altitude = 0, 0, 0
	}
	return t, nil
}

// decodeBERLength returns the payload length and the number of bytes the
// length field occupies. Only the forms the encoder produces are accepted:
// short form, 0x81, 0x82 and 0x84.
func decodeBERLength(b []byte) (int, int, error) {
	if len(b) == 0 {
		return 0, 0, errors.Wrap(ErrTruncated, "missing length")
	}
	marker := b[0]
	if marker < 0x80 {
		return int(marker), 1, nil
	}

	var width int
	switch marker {
	case 0x81:
		width = 1
	case 0x82:
		width = 2
	case 0x84:
		width = 4
	default:
		return 0, 0, errors.Wrapf(ErrUnsupportedLength, "marker 0x%02x", marker)
	}
	if len(b) < 1+width {
		return 0, 0, errors.Wrap(ErrTruncated, "short length field")
	}
	var n int
	for _, c := range b[1 : 1+width] {
		n = n<<8 | int(c)
	}
	return n, 1 + width, nil
}

func unpackInt(r ScalingRule, value []byte) int64 {
	switch r.Width {
	case 2:
		u := binary.BigEndian.Uint16(value)
		if r.Signed {
			return int64(int16(u))
		}
		return int64(u)
	default:
		u := binary.BigEndian.Uint32(value)
		if r.Signed {
			return int64(int32(u))
		}
		return int64(u)
	}
}

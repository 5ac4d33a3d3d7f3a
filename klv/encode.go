package klv

import (
	"encoding/binary"

	"github.com/jd3nn1s/parrotfwd"
)

// Codec adapts the package functions to the forwarder's Encoder interface.
type Codec struct{}

func (Codec) Encode(t parrotfwd.Telemetry) ([]byte, error) {
	return Encode(t)
}

// Encode serializes a sample into a MISB 0601 packet. Items are emitted in
// ascending tag order. Timestamp and attitude are always present; the GPS
// trio (tags 13, 14, 15) is emitted only when the sample has a fix and all
// three values validate, as an all-or-nothing group. A validation failure on
// an attitude field fails the whole packet instead.
//
// The returned slice is freshly allocated and shares no memory with the
// sample or the encoder.
func Encode(t parrotfwd.Telemetry) ([]byte, error) {
	payload := make([]byte, 0, 64)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], t.TimestampUS)
	payload = appendItem(payload, TagTimestamp, ts[:])

	heading := t.Heading
	if heading < 0 {
		heading += 360
	}
	attitude := []struct {
		tag Tag
		raw float64
	}{
		{TagRoll, t.Roll},
		{TagPitch, t.Pitch},
		{TagHeading, heading},
	}
	for _, f := range attitude {
		wire, err := Scale(f.tag, f.raw)
		if err != nil {
			return nil, err
		}
		payload = appendItem(payload, f.tag, packInt(rules[f.tag], wire))
	}

	if t.GPSFixed {
		payload = appendGPSGroup(payload, t)
	}

	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	out := make([]byte, 0, len(UniversalKey)+5+len(payload))
	out = append(out, UniversalKey[:]...)
	out = appendBERLength(out, len(payload))
	return append(out, payload...), nil
}

// appendGPSGroup scales latitude, longitude and altitude and appends all
// three items, or none if any of them is out of range.
func appendGPSGroup(payload []byte, t parrotfwd.Telemetry) []byte {
	gps := []struct {
		tag Tag
		raw float64
	}{
		{TagLatitude, t.Latitude},
		{TagLongitude, t.Longitude},
		{TagAltitude, t.Altitude},
	}
	wires := make([]int64, len(gps))
	for i, f := range gps {
		wire, err := Scale(f.tag, f.raw)
		if err != nil {
			return payload
		}
		wires[i] = wire
	}
	for i, f := range gps {
		payload = appendItem(payload, f.tag, packInt(rules[f.tag], wires[i]))
	}
	return payload
}

func appendItem(dst []byte, tag Tag, value []byte) []byte {
	dst = append(dst, byte(tag), byte(len(value)))
	return append(dst, value...)
}

// packInt packs a scaled value big-endian into the rule's fixed width.
// Two's complement covers the signed rules.
func packInt(r ScalingRule, v int64) []byte {
	switch r.Width {
	case 2:
		return []byte{byte(v >> 8), byte(v)}
	case 4:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))
		return b
	}
}

// appendBERLength encodes n per BER: short form below 128, otherwise a
// marker byte (0x81, 0x82 or 0x84) followed by 1, 2 or 4 big-endian length
// bytes. The 0x83 three-byte form is never produced.
func appendBERLength(dst []byte, n int) []byte {
	switch {
	case n < 0x80:
		return append(dst, byte(n))
	case n < 0x100:
		return append(dst, 0x81, byte(n))
	case n < 0x10000:
		return append(dst, 0x82, byte(n>>8), byte(n))
	default:
		return append(dst, 0x84, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

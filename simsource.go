package parrotfwd

import "time"

// samples before the simulated GPS reports a fix
const simFixAfter = 20

// SimSource is a Sampler that generates synthetic telemetry for running the
// forwarder without a drone: attitude sweeps back and forth, heading rotates,
// and a GPS fix appears after a short warmup with the position drifting
// slowly north-east.
type SimSource struct {
	samples int

	roll      float64
	rollDown  bool
	pitch     float64
	pitchDown bool
	heading   float64

	lat float64
	lon float64
	alt float64

	now func() time.Time
}

func NewSimSource() *SimSource {
	return &SimSource{
		lat: 37.7749,
		lon: -122.4194,
		alt: 100,
		now: time.Now,
	}
}

func (s *SimSource) Sample() (Telemetry, error) {
	s.samples++

	if s.rollDown {
		s.roll -= 0.5
	} else {
		s.roll += 0.5
	}
	if s.roll >= 30 {
		s.rollDown = true
	} else if s.roll <= -30 {
		s.rollDown = false
	}

	if s.pitchDown {
		s.pitch -= 0.2
	} else {
		s.pitch += 0.2
	}
	if s.pitch >= 10 {
		s.pitchDown = true
	} else if s.pitch <= -10 {
		s.pitchDown = false
	}

	s.heading++
	if s.heading >= 360 {
		s.heading -= 360
	}

	t := Telemetry{
		TimestampUS: uint64(s.now().UnixMicro()),
		Roll:        s.roll,
		Pitch:       s.pitch,
		Heading:     s.heading,
	}

	if s.samples > simFixAfter {
		s.lat += 0.00001
		s.lon += 0.00001
		s.alt += 0.1
		if s.alt >= 150 {
			s.alt = 100
		}
		t.GPSFixed = true
		t.Latitude = s.lat
		t.Longitude = s.lon
		t.Altitude = s.alt
	}
	return t, nil
}

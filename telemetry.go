package parrotfwd

// Telemetry is a point-in-time reading of the platform sensors. Timestamp
// and attitude come from the IMU and are always present; the GPS fields are
// only meaningful when GPSFixed is true.
type Telemetry struct {
	TimestampUS uint64

	Roll    float64
	Pitch   float64
	Heading float64

	GPSFixed  bool
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Sampler provides the current telemetry reading. Sample is called
// synchronously once per scheduler cycle and must return well within the
// emission interval; the scheduler does not enforce a deadline.
type Sampler interface {
	Sample() (Telemetry, error)
}

// Encoder turns a telemetry sample into a wire packet.
type Encoder interface {
	Encode(Telemetry) ([]byte, error)
}

// Sink accepts an encoded packet for transmission.
type Sink interface {
	Send([]byte) error
	Close() error
}

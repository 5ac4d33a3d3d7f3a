// Package receiver is the reference consumer for the forwarder's KLV
// stream: it listens on UDP, decodes each datagram and optionally archives
// the samples to sqlite.
package receiver

import (
	"context"
	"net"
	"time"

	"github.com/jd3nn1s/parrotfwd/klv"
	"github.com/jd3nn1s/parrotfwd/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// readTimeout bounds each blocking read so ctx cancellation is noticed.
const readTimeout = time.Second

type Receiver struct {
	pc    net.PacketConn
	store *Store

	now func() time.Time
}

// New listens on addr. store may be nil to disable archiving.
func New(addr string, store *Store) (*Receiver, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to listen on %s", addr)
	}
	return &Receiver{pc: pc, store: store, now: time.Now}, nil
}

// Addr returns the bound listen address.
func (r *Receiver) Addr() net.Addr {
	return r.pc.LocalAddr()
}

func (r *Receiver) Close() error {
	return r.pc.Close()
}

// Run reads datagrams until ctx is cancelled. A datagram that fails to
// decode or store is counted and skipped, never fatal.
func (r *Receiver) Run(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.pc.SetReadDeadline(r.now().Add(readTimeout)); err != nil {
			return errors.Wrap(err, "unable to set read deadline")
		}
		n, _, err := r.pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return errors.Wrap(err, "reading datagram")
		}

		sample, err := klv.Decode(buf[:n])
		if err != nil {
			metrics.DecodeErrors.Inc()
			log.WithField("err", err).Warn("discarding undecodable datagram")
			continue
		}
		metrics.PacketsReceived.Inc()
		log.WithFields(log.Fields{
			"timestampUS": sample.TimestampUS,
			"roll":        sample.Roll,
			"pitch":       sample.Pitch,
			"heading":     sample.Heading,
			"gpsFixed":    sample.GPSFixed,
		}).Debug("telemetry received")

		if r.store != nil {
			if err := r.store.Insert(r.now(), sample); err != nil {
				log.WithField("err", err).Error("unable to archive sample")
			}
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jd3nn1s/parrotfwd"
	"github.com/jd3nn1s/parrotfwd/forwarder"
	"github.com/jd3nn1s/parrotfwd/klv"
	"github.com/jd3nn1s/parrotfwd/metrics"
	log "github.com/sirupsen/logrus"
)

var (
	fps            = flag.Int("telemetry-fps", 10, "telemetry packets per second")
	duration       = flag.Duration("duration", 0, "how long to run (0 = indefinitely)")
	configName     = flag.String("config", "udpforwarder.toml", "UDP forwarder config file next to the binary")
	metricsAddr    = flag.String("metrics-addr", ":9090", "prometheus listen address (empty = disabled)")
	maxRetries     = flag.Int("max-retries", 5, "maximum sink connection attempts")
	retryInterval  = flag.Duration("retry-interval", 5*time.Second, "wait between connection attempts")
	resyncAfter    = flag.Int("resync-after", 3, "missed intervals before the scheduler resynchronizes")
	printTelemetry = flag.Bool("print-telemetry", false, "print telemetry to stdout")
	verbose        = flag.Bool("verbose", false, "enable debug logging")
)

type printingSampler struct {
	parrotfwd.Sampler
}

func (p printingSampler) Sample() (parrotfwd.Telemetry, error) {
	t, err := p.Sampler.Sample()
	if err == nil {
		fmt.Printf("%+v\n", t)
	}
	return t, err
}

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *fps <= 0 {
		log.Fatal("telemetry-fps must be positive")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var fwder *forwarder.UDPForwarder
	err := parrotfwd.Retry(ctx, "udp forwarder", parrotfwd.RetryPolicy{
		MaxAttempts: *maxRetries,
		Backoff:     *retryInterval,
	}, func() error {
		var err error
		fwder, err = forwarder.NewUDPForwarder(*configName)
		return err
	})
	if err != nil {
		log.Fatal("unable to start UDP forwarder: ", err)
	}
	defer fwder.Close()

	if *metricsAddr != "" {
		go metrics.Serve(*metricsAddr)
	}

	// a real drone state provider plugs in as the Sampler; the simulated
	// source keeps the pipeline exercisable without hardware
	var sampler parrotfwd.Sampler = parrotfwd.NewSimSource()
	if *printTelemetry {
		sampler = printingSampler{sampler}
	}

	sched, err := parrotfwd.NewScheduler(time.Second/time.Duration(*fps), sampler, klv.Codec{}, fwder)
	if err != nil {
		log.Fatal("unable to create scheduler: ", err)
	}
	sched.ResyncAfter = *resyncAfter

	err = sched.Run(ctx)
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		log.Fatal("scheduler: ", err)
	}
}

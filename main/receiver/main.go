package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/jd3nn1s/parrotfwd/metrics"
	"github.com/jd3nn1s/parrotfwd/receiver"
	log "github.com/sirupsen/logrus"
)

var (
	listenAddr  = flag.String("listen", ":5000", "UDP address to receive telemetry on")
	dbPath      = flag.String("db", "", "sqlite file to archive samples to (empty = no archive)")
	metricsAddr = flag.String("metrics-addr", "", "prometheus listen address (empty = disabled)")
	verbose     = flag.Bool("verbose", false, "log every received sample")
)

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store *receiver.Store
	if *dbPath != "" {
		var err error
		store, err = receiver.OpenStore(*dbPath)
		if err != nil {
			log.Fatal("unable to open archive: ", err)
		}
		defer store.Close()
	}

	recv, err := receiver.New(*listenAddr, store)
	if err != nil {
		log.Fatal("unable to start receiver: ", err)
	}
	defer recv.Close()

	if *metricsAddr != "" {
		go metrics.Serve(*metricsAddr)
	}

	log.WithField("addr", recv.Addr()).Info("telemetry receiver started")
	if err := recv.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal("receiver: ", err)
	}
}

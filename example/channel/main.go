package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/QuakeFlow"
)

func main() {
	flow, err := quakeflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tx, payloads, closePayloads := quakeflow.NewChannelTransmitter("fanout", 8)
	defer closePayloads()

	go alarmWorker(payloads)

	if err := flow.Run(ctx, quakeflow.StreamOutTransmitter(tx)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

// alarmWorker raises a local alarm for strong shaking while the signed report
// is handed back to the dispatcher as delivered.
func alarmWorker(payloads <-chan quakeflow.SignedPayload) {
	for p := range payloads {
		if p.Value >= 500 {
			log.Printf("ALARM misurator=%d ratio=%.2f at %d", p.MisuratorID, float64(p.Value)/100, p.DeviceTimestamp)
			continue
		}
		log.Printf("event misurator=%d ratio=%.2f", p.MisuratorID, float64(p.Value)/100)
	}
}

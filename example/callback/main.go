package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/QuakeFlow/pkg/quakeflow"
)

func main() {
	flow, err := quakeflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(p quakeflow.SignedPayload) error {
		fmt.Printf("%s misurator=%d value=%d sig=%s\n",
			time.Unix(p.DeviceTimestamp, 0).UTC().Format(time.RFC3339),
			p.MisuratorID,
			p.Value,
			p.SignatureHex,
		)
		return nil
	}

	if err := flow.Run(ctx, quakeflow.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

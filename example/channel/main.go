package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/plcwatch"
)

func main() {
	flow, err := plcwatch.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, records, closeRecords := plcwatch.NewChannelSink("fanout", 32)
	defer closeRecords()

	go fanoutWorker("forward", records)

	if err := flow.Run(ctx, plcwatch.StreamOutSink(sink)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, records <-chan plcwatch.Record) {
	for rec := range records {
		fmt.Printf("[%s] %s %v at %s\n", name, rec.Table, rec.Row, time.Now().Format(time.RFC3339))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/plcwatch"
)

func main() {
	flow, err := plcwatch.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	tables := flow.Config().Store.Tables

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(rec plcwatch.Record) error {
		switch rec.Table {
		case tables.Alarm:
			fmt.Printf("alarm proc=%v class=%v state=%v %q at %v\n", rec.Row[0], rec.Row[1], rec.Row[2], rec.Row[3], rec.Row[4])
		case tables.Data:
			fmt.Printf("tag %v=%v at %v\n", rec.Row[0], rec.Row[1], rec.Row[2])
		}
		return nil
	}

	if err := flow.Run(ctx, plcwatch.StreamOutCallback("stdout", callback)); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

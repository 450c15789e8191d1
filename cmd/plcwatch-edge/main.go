package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ghalamif/plcwatch"
)

const defaultConfigPath = "./data/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "query":
		err = queryCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "plcwatch-edge %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "path to edge configuration file")
	clearTables := fs.Bool("clear", false, "truncate data and alarm tables before polling starts")
	debug := fs.Bool("debug", false, "development logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(*debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	flow, err := plcwatch.Conf(*cfgPath, plcwatch.WithFlowOptions(
		plcwatch.WithLogger(logger),
		plcwatch.WithClearOnStart(*clearTables),
	))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil {
		logger.Error("runtime_stopped", zap.Error(err))
		return err
	}
	return nil
}

func validateCommand(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := plcwatch.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}

	cycles := map[time.Duration]int{}
	for _, t := range cfg.Tags {
		cycles[t.Cycle]++
	}
	periods := make([]time.Duration, 0, len(cycles))
	for p := range cycles {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })

	fmt.Printf("config %s is valid\n", *cfgPath)
	fmt.Printf("  device    %s\n", cfg.Device.Endpoint)
	fmt.Printf("  store     %s (%s, %s)\n", cfg.Store.Driver, cfg.Store.Tables.Data, cfg.Store.Tables.Alarm)
	fmt.Printf("  alarms    %d words\n", len(cfg.Alarms))
	for _, p := range periods {
		fmt.Printf("  cycle %-8s %d tags\n", p, cycles[p])
	}
	return nil
}

func queryCommand(args []string) error {
	fs := pflag.NewFlagSet("query", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", defaultConfigPath, "path to configuration file")
	table := fs.StringP("table", "t", "", "table to read (defaults to the data table)")
	selectExpr := fs.String("select", "*", "column list")
	where := fs.String("where", "", "optional filter expression")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := plcwatch.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *table == "" {
		*table = cfg.Store.Tables.Data
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := plcwatch.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Query(ctx, *table, *selectExpr, *where)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "%d rows\n", len(rows))
	return nil
}

func printUsage() {
	fmt.Printf(`PLCWatch edge CLI

Usage:
  plcwatch-edge <command> [flags]

Commands:
  run        Start polling the controller and persisting rows
  validate   Load and validate a config file without connecting
  query      Print rows from the data or alarm table as JSON lines
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  plcwatch-edge run --config ./data/config.yaml --clear
  plcwatch-edge validate --config ./data/config.yaml
  plcwatch-edge query --table alarm_log --where "state = 1"
  plcwatch-edge stats --url http://localhost:9100/metrics --interval 1s
`)
}

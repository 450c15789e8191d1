package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every row as a JSON object keyed by table. Sample rows
// are keyed by tag name so one tag stays on one partition.
type KafkaSink struct {
	w      messageWriter
	tables Tables
	layout layout
	now    func() time.Time
}

func NewKafkaSink(cfg KafkaConfig, tables Tables) (*KafkaSink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka sink: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka sink: topic is required")
	}
	return newKafkaSink(newKafkaWriter(cfg), tables), nil
}

// newKafkaWriter flushes every message on its own. Insert is called once per
// row from the single consumer, so a partially filled batch would otherwise
// sit for BatchTimeout on every call.
func newKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
	}
}

func newKafkaSink(w messageWriter, tables Tables) *KafkaSink {
	tables.ApplyDefaults()
	return &KafkaSink{w: w, tables: tables, layout: newLayout(tables), now: time.Now}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Insert(ctx context.Context, table string, row domain.Row) error {
	names, err := k.layout.columnNames(table)
	if err != nil {
		return fmt.Errorf("kafka sink: %w", err)
	}
	if len(row) != len(names) {
		return fmt.Errorf("kafka sink: %s expects %d values, got %d", table, len(names), len(row))
	}

	payload := make(map[string]any, len(names)+1)
	payload["table"] = table
	for i, n := range names {
		payload[n] = row[i]
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("kafka sink: marshal: %w", err)
	}

	key := table
	if table == k.tables.Data {
		if name, ok := row[0].(string); ok {
			key = name
		}
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   b,
		Time:    k.now(),
		Headers: []kafka.Header{{Key: "table", Value: []byte(table)}},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka sink: write: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.w.Close()
}

var _ ports.Sink = (*KafkaSink)(nil)

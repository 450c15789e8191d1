package ports

import "time"

const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop_oldest"
	OverflowDrop       = "drop"
)

type Policy struct {
	MaxQueueLen    int           `yaml:"max_queue_len"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
	IdleSleep      time.Duration `yaml:"idle_sleep"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop_oldest", "drop"
}

// Reconnect bounds the blocking reconnect performed after a failed device read.
type Reconnect struct {
	Attempts int           `yaml:"reconnect_attempts"`
	Timeout  time.Duration `yaml:"reconnect_timeout"`
}

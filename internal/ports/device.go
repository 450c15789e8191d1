package ports

import (
	"context"

	"github.com/ghalamif/plcwatch/internal/domain"
)

// DeviceClient is a synchronous request/response session with one device.
// Implementations are not expected to be safe for concurrent use.
type DeviceClient interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	// Read returns tag name -> raw value. A nil or empty map with a nil error
	// is treated as a failed read. Values may be any Go integer, float, bool,
	// string or []byte; they are normalized before change detection and any
	// other type fails the read.
	Read(ctx context.Context, tags []domain.TagDescriptor) (map[string]any, error)
	Disconnect(ctx context.Context) error
}

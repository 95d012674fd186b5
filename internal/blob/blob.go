// Package blob talks to the external store that holds raw chunk bytes.
// The engine only ever needs two capabilities: store bytes under a name
// and get an opaque id back, or fetch bytes by that id.
package blob

import (
	"context"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("vidstream-blob")

// Store is the blob backend capability interface. Put returns the
// backend-assigned opaque id used for all later retrieval; the name is a
// hint for the backend only and carries no meaning afterwards.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, fileID string) ([]byte, error)
}

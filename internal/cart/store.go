package cart

import (
	"context"
	"errors"
)

// ErrNotPersisted reports that no cart representation exists in the store.
var ErrNotPersisted = errors.New("cart not persisted")

// Store is the durable single-key home of the serialized cart. The payload is
// always a JSON array of items; interpreting (or discarding) it is the
// service's job, so backends stay byte-oriented.
type Store interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Clear(ctx context.Context) error
}

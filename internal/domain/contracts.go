package domain

import "context"

// RecordStore is the roster's persistence contract. The store may be edited
// concurrently by other writers, so mutations go through narrow per-row
// UpdateFields calls rather than whole-table rewrites.
type RecordStore interface {
	ListAll(ctx context.Context) ([]Contact, error)
	GetByID(ctx context.Context, id int64) (*Contact, error)
	Add(ctx context.Context, c Contact) (int64, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]any) error

	// GetKV/PutKV expose a small key-value slot used for the persisted
	// reply-index snapshot. GetKV returns (nil, nil) when the key is absent.
	GetKV(ctx context.Context, key string) ([]byte, error)
	PutKV(ctx context.Context, key string, value []byte) error

	Close() error
}

// Transport sends one templated message to one phone number and returns the
// provider's status marker. Errors are converted to failed receipts by the
// dispatcher, never propagated out of a pass.
type Transport interface {
	Send(ctx context.Context, phone, templateID string) (string, error)
}

// DocumentStore is the external mirror that contact updates are pushed into
// on a best-effort basis.
type DocumentStore interface {
	Put(ctx context.Context, key string, doc map[string]any) error
}

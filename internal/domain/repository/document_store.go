package repository

import (
	"context"
	"encoding/json"
)

// DocumentStore is the external key-value/document service the account core
// writes through. Documents are opaque JSON keyed by a store-assigned id and
// queryable by top-level field.
//
// Updates are merge patches with last-writer-wins semantics; there is no
// optimistic-concurrency token, so concurrent writers to the same document
// can lose updates. Callers must pass a context with a deadline.
type DocumentStore interface {
	// GetByID returns the document or ErrNotFound.
	GetByID(ctx context.Context, collection, id string) (json.RawMessage, error)

	// QueryByField returns every document whose top-level field equals value.
	// Callers that expect at most one match use the first.
	QueryByField(ctx context.Context, collection, field, value string) ([]json.RawMessage, error)

	// Put stores doc under id, assigning a fresh id when id is empty, and
	// returns the id the document is stored under.
	Put(ctx context.Context, collection, id string, doc any) (string, error)

	// Update merges partial into the stored document, or ErrNotFound.
	Update(ctx context.Context, collection, id string, partial map[string]any) error
}

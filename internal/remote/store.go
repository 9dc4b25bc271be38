// Package remote talks to the remote document store that holds orders,
// notifications and the cart mirror. The engine relies only on insert,
// query, delete and a single-record update; it never assumes transactions.
//
// Raw documents never leave this package untyped: records.go maps them to
// domain structs and rejects malformed shapes with ErrInvalidRecord.
package remote

import (
	"context"
	"errors"
)

const (
	CollectionOrders        = "orders"
	CollectionNotifications = "notifications"
	CollectionCart          = "cart"
	CollectionStock         = "stock"
)

// FieldID is the key under which every returned document carries its
// store-assigned identifier.
const FieldID = "id"

var (
	ErrNotFound      = errors.New("document not found")
	ErrInvalidRecord = errors.New("invalid remote record")
)

// Document is one record as stored remotely.
type Document map[string]any

// Filter matches documents whose top-level fields equal every given value.
type Filter map[string]any

type DocumentStore interface {
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Delete returns ErrNotFound when no document has the id.
	Delete(ctx context.Context, collection, id string) error
	Update(ctx context.Context, collection, id string, fields Document) error
}

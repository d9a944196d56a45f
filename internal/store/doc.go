// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the card services, so the same business rules run against PostgreSQL
// or the in-memory store.
//
// Mutations of existing cards go through CardStore.Update, which locks the
// affected cards in ascending ID order and applies all staged changes as one
// atomic unit.
package store

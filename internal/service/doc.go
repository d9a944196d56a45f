// Package service contains the card, transfer, user and auth use cases.
// It orchestrates domain objects and the store interfaces (defined in
// internal/store) and never depends on a concrete storage implementation.
//
// Every mutation of a card goes through store.CardStore.Update, which locks
// the affected cards in ascending ID order for the duration of a single
// commit. Services re-validate against the locked cards rather than the
// snapshots read before locking.
//
// Errors returned by services carry one of the domain error kinds
// (domain.ErrCardNotFound, domain.ErrInsufficientFunds, ...) so the API
// layer can map them to responses with errors.Is. Store errors are
// translated before they leave the package; ErrConcurrentModification is
// the only kind a caller may retry.
package service

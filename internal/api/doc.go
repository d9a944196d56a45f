// Package api implements the HTTP layer of the bank cards service: request
// decoding and validation, handlers for the auth, card, transfer and admin
// routes, and the mapping of domain error kinds onto status codes.
//
// Subpackage shared holds response helpers and request context accessors;
// subpackage middleware holds authentication, role checks, tracing and
// request metrics.
package api

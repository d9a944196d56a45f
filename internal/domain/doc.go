// Package domain holds the card, user and transfer entities together with
// the rules that do not depend on storage: card number and balance
// validation, status transitions, expiry by calendar date, masking and the
// pagination types shared by every list operation.
package domain

// Package auth issues and validates the HS256 access tokens of the API and
// hashes user passwords with bcrypt.
package auth

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/bankcards-api/internal/api/shared"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/service/auth"
)

// errorKind describes how one error kind is rendered over HTTP.
type errorKind struct {
	err     error
	status  int
	code    string
	message string
}

// errorKinds is checked in order with errors.Is; the first match wins.
var errorKinds = []errorKind{
	// Authentication and authorization
	{auth.ErrMissingToken, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"},
	{auth.ErrExpiredToken, http.StatusUnauthorized, "UNAUTHORIZED", "Token expired"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token"},
	{auth.ErrTokenNotYetValid, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"},
	{auth.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions"},

	// Not found
	{domain.ErrCardNotFound, http.StatusNotFound, "CARD_NOT_FOUND", "Card not found"},
	{domain.ErrOwnerNotFound, http.StatusNotFound, "OWNER_NOT_FOUND", "Owner not found"},
	{domain.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND", "User not found"},

	// Conflicts
	{domain.ErrDuplicateCardNumber, http.StatusConflict, "DUPLICATE_CARD_NUMBER", "Card number already exists"},
	{domain.ErrUsernameTaken, http.StatusConflict, "USERNAME_TAKEN", "Username already taken"},
	{domain.ErrUserHasCards, http.StatusConflict, "USER_HAS_CARDS", "User still owns cards"},
	{domain.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION",
		"The card was modified concurrently, please retry"},

	// Business rules
	{domain.ErrInvalidStateTransition, http.StatusUnprocessableEntity, "INVALID_STATE_TRANSITION",
		"Invalid card state transition"},
	{domain.ErrSameCardTransfer, http.StatusUnprocessableEntity, "SAME_CARD_TRANSFER",
		"Cannot transfer to the same card"},
	{domain.ErrAmountTooLarge, http.StatusUnprocessableEntity, "AMOUNT_TOO_LARGE", "Transfer amount too large"},
	{domain.ErrSourceNotActive, http.StatusUnprocessableEntity, "SOURCE_NOT_ACTIVE", "Source card is not active"},
	{domain.ErrDestinationNotActive, http.StatusUnprocessableEntity, "DESTINATION_NOT_ACTIVE",
		"Destination card is not active"},
	{domain.ErrCardExpired, http.StatusUnprocessableEntity, "CARD_EXPIRED", "Card is expired"},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"},

	// Malformed input
	{domain.ErrInvalidCardNumber, http.StatusBadRequest, "INVALID_CARD_NUMBER", "Invalid card number"},
	{domain.ErrInvalidExpiry, http.StatusBadRequest, "INVALID_EXPIRY", "Invalid expiry date"},
	{domain.ErrInvalidBalance, http.StatusBadRequest, "INVALID_BALANCE", "Invalid balance"},
	{domain.ErrInvalidStatus, http.StatusBadRequest, "INVALID_STATUS", "Invalid card status"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT", "Invalid transfer amount"},
	{domain.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR", "Validation error"},

	// Infrastructure
	{domain.ErrStorageUnavailable, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE",
		"Service temporarily unavailable"},
}

func lookupErrorKind(err error) (errorKind, bool) {
	if err == nil {
		return errorKind{}, false
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k, true
		}
	}
	return errorKind{}, false
}

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error kind. Unknown errors map to 500.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	var domainValidation *domain.ValidationError
	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.As(err, &domainValidation):
		if k, ok := lookupErrorKind(err); ok {
			return k.status
		}
		return http.StatusBadRequest
	}
	if k, ok := lookupErrorKind(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// GetSafeErrorMessage returns a client-facing message for err that never
// includes card numbers or internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return SanitizeValidationError(err)
	}

	var domainValidation *domain.ValidationError
	if errors.As(err, &domainValidation) && domainValidation.Field != "" {
		if domainValidation.Err != nil && !errors.Is(domainValidation.Err, domain.ErrValidation) {
			return fmt.Sprintf("Invalid %s: %v", domainValidation.Field, domainValidation.Err)
		}
		return fmt.Sprintf("Invalid %s", domainValidation.Field)
	}

	k, ok := lookupErrorKind(err)
	if !ok {
		return "An unexpected error occurred"
	}

	// CardError messages are built from status tokens and amounts only.
	var cardErr *domain.CardError
	if errors.As(err, &cardErr) && cardErr.Message != "" && k.status < http.StatusInternalServerError {
		return k.message + ": " + cardErr.Message
	}
	return k.message
}

// errorDetails extracts the structured details of err for the error body.
func errorDetails(err error) map[string]any {
	details := map[string]any{}
	if k, ok := lookupErrorKind(err); ok {
		details["code"] = k.code
	}

	var cardErr *domain.CardError
	if errors.As(err, &cardErr) {
		if cardErr.Field != "" {
			details["field"] = cardErr.Field
		}
		if cardErr.Available != nil {
			details["available"] = cardErr.Available.StringFixed(domain.MoneyScale)
		}
	}

	var domainValidation *domain.ValidationError
	if errors.As(err, &domainValidation) && domainValidation.Field != "" {
		details["field"] = domainValidation.Field
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		details["code"] = "VALIDATION_ERROR"
		details["field"] = jsonFieldName(validationErrs[0].Field())
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// HandleAPIError writes the error response for err. fallbackMsg replaces
// the generic message of unknown (500) errors when set.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallbackMsg != "" {
		message = fallbackMsg
	}

	var opts []shared.ResponseOption
	opts = append(opts, shared.WithDetails(errorDetails(err)))
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}
	fe := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", jsonFieldName(fe.Field()), getValidationTagMessage(fe.Tag()))
}

// jsonFieldName lower-cases the first letter of a Go field name, which
// matches the camelCase JSON names of the request DTOs.
func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "numeric":
		return "must be numeric"
	case "len":
		return "invalid length"
	case "uuid":
		return "invalid identifier"
	default:
		return "validation failed"
	}
}

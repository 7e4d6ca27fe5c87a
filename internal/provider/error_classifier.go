package provider

import (
	"errors"
	"strconv"
	"strings"
)

// ProviderError is a transport rejection with classification metadata.
// Dispatch never retries, but the classification is recorded with the
// failed delivery so operators can tell bad addresses from outages.
type ProviderError struct {
	Provider string
	// StatusCode is the HTTP status or SMTP reply code, zero when unknown.
	StatusCode int
	Message    string
	// Permanent reports that resending the same message cannot succeed.
	Permanent bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

// IsPermanent reports whether err is a ProviderError marked permanent.
func IsPermanent(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Permanent
}

// IsTransient reports whether err may succeed on a later attempt. Errors
// that are not ProviderErrors (network, timeouts) count as transient.
func IsTransient(err error) bool {
	return !IsPermanent(err)
}

// Body fragments that make an otherwise ambiguous HTTP status permanent.
var (
	badRecipientPhrases = []string{
		"invalid recipient",
		"invalid email",
		"invalid address",
		"does not exist",
		"mailbox not found",
		"recipient rejected",
		"bad request",
		"validation error",
	}
	badAccountPhrases = []string{
		"invalid api key",
		"authentication failed",
		"account suspended",
		"account disabled",
		"unauthorized",
	}
)

// ClassifyHTTPError builds a ProviderError from an HTTP API reply. It
// returns nil for 2xx statuses.
func ClassifyHTTPError(providerName string, statusCode int, body string) *ProviderError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	pe := &ProviderError{Provider: providerName, StatusCode: statusCode, Message: body}
	switch {
	case statusCode == 400:
		pe.Permanent = containsAny(body, badRecipientPhrases)
	case statusCode == 408, statusCode == 429:
		pe.Permanent = false
	case statusCode >= 500:
		pe.Permanent = containsAny(body, badAccountPhrases)
	default:
		// 401, 403, 404 and the remaining 4xx will not change on resend.
		pe.Permanent = statusCode >= 400
	}
	return pe
}

// ClassifySMTPReply builds a ProviderError from an SMTP reply. A 5xx reply
// is permanent unless its enhanced status code (RFC 3463) has class 4 or
// reports a full mailbox (x.2.2).
func ClassifySMTPReply(code int, enhanced [3]int, message string) *ProviderError {
	pe := &ProviderError{Provider: "smtp", StatusCode: code, Message: message}
	if code < 500 || code >= 600 {
		return pe
	}
	switch {
	case enhanced[0] == 4:
		pe.Permanent = false
	case enhanced[1] == 2 && enhanced[2] == 2:
		pe.Permanent = false
	default:
		pe.Permanent = true
	}
	return pe
}

func containsAny(body string, phrases []string) bool {
	lower := strings.ToLower(body)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Describe renders err for a failed delivery record, prefixed with its
// classification. A reply code missing from the message is appended.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	kind := "transient"
	if IsPermanent(err) {
		kind = "permanent"
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode != 0 && !strings.Contains(pe.Message, strconv.Itoa(pe.StatusCode)) {
		return kind + ": " + err.Error() + " (status " + strconv.Itoa(pe.StatusCode) + ")"
	}
	return kind + ": " + err.Error()
}

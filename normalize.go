package shopper

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxProductNameLength = 200
	MaxMessageLength     = 5000
	MinPasswordLength    = 6
)

// NormalizeName is the sole equality key for list entries: trimmed,
// lowercased, with runs of whitespace collapsed to one space.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SameProduct compares two product names by their normalized form.
func SameProduct(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

// ValidateProductName trims name and checks its length.
func ValidateProductName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "product_name", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxProductNameLength {
		return "", &ValidationError{Field: "product_name", Reason: "must be at most 200 characters"}
	}
	return name, nil
}

// ValidateMessage trims a chat message and checks its length.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", &ValidationError{Field: "message", Reason: "must be at most 5000 characters"}
	}
	return text, nil
}

// ValidateCredentials performs the client-side checks done before login or register.
func ValidateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return &ValidationError{Field: "email", Reason: "must be a valid address"}
	}
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	return nil
}

// ValidateProfile rejects negative or inverted budgets.
func ValidateProfile(p Profile) error {
	if p.MinBudget != nil && *p.MinBudget < 0 {
		return &ValidationError{Field: "min_budget", Reason: "must not be negative"}
	}
	if p.MaxBudget != nil && *p.MaxBudget < 0 {
		return &ValidationError{Field: "max_budget", Reason: "must not be negative"}
	}
	if p.MinBudget != nil && p.MaxBudget != nil && *p.MinBudget > *p.MaxBudget {
		return &ValidationError{Field: "max_budget", Reason: "must not be below min_budget"}
	}
	return nil
}

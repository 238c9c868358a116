package secrets

import (
	"fmt"
	"strings"
	"unicode"

	dErrors "keystone/pkg/domain-errors"
)

// Policy captures a tenant's password composition rules. Validation
// inspects the plain value only; it never hashes. Policies are plain
// values threaded through constructors, not package-level defaults.
type Policy struct {
	MinLength        int
	MaxLength        int
	RequireLowercase bool
	RequireUppercase bool
	RequireDigit     bool
	RequireSymbol    bool
	MinUniqueChars   int
}

// DefaultPolicy is a reasonable baseline for user-chosen passwords.
// Generated secrets (OTPs, bearer secrets) bypass policy checks.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, MaxLength: 128, RequireLowercase: true, RequireDigit: true, MinUniqueChars: 4}
}

// Validate checks the plain value against the policy and reports every
// unmet rule at once, so clients can show the full list.
func (p Policy) Validate(plain string) error {
	var unmet []string
	if n := len([]rune(plain)); n < p.MinLength {
		unmet = append(unmet, fmt.Sprintf("at least %d characters", p.MinLength))
	} else if p.MaxLength > 0 && n > p.MaxLength {
		unmet = append(unmet, fmt.Sprintf("at most %d characters", p.MaxLength))
	}
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	unique := make(map[rune]struct{})
	for _, r := range plain {
		unique[r] = struct{}{}
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	if p.RequireLowercase && !hasLower {
		unmet = append(unmet, "a lowercase letter")
	}
	if p.RequireUppercase && !hasUpper {
		unmet = append(unmet, "an uppercase letter")
	}
	if p.RequireDigit && !hasDigit {
		unmet = append(unmet, "a digit")
	}
	if p.RequireSymbol && !hasSymbol {
		unmet = append(unmet, "a symbol")
	}
	if p.MinUniqueChars > 0 && len(unique) < p.MinUniqueChars {
		unmet = append(unmet, fmt.Sprintf("at least %d distinct characters", p.MinUniqueChars))
	}
	if len(unmet) > 0 {
		return dErrors.New(dErrors.CodeValidation, "password must contain "+strings.Join(unmet, ", "))
	}
	return nil
}

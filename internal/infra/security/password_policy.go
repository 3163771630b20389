package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// PasswordSpecialCharacters is the accepted symbol set for the special-character class.
const PasswordSpecialCharacters = "!@#$%^&*_-."

const (
	defaultMinPasswordLength = 8
	maxStrengthScore         = 4
)

// PasswordValidationError names the first policy violation found in a password.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap classifies policy violations as validation errors.
func (e *PasswordValidationError) Unwrap() error {
	return domain.ErrValidation
}

type characterClass struct {
	code    string
	message string
	member  func(r rune) bool
}

var requiredClasses = []characterClass{
	{code: "upper", message: "password must include an uppercase letter", member: unicode.IsUpper},
	{code: "lower", message: "password must include a lowercase letter", member: unicode.IsLower},
	{code: "digit", message: "password must include a digit", member: unicode.IsDigit},
	{
		code:    "special",
		message: "password must include one of " + PasswordSpecialCharacters,
		member:  func(r rune) bool { return strings.ContainsRune(PasswordSpecialCharacters, r) },
	},
}

// PasswordPolicyOptions tunes the registration policy. MinStrengthScore 0 disables the zxcvbn check.
type PasswordPolicyOptions struct {
	MinLength        int
	MinStrengthScore int
}

// PasswordPolicy checks length, the required character classes and an optional zxcvbn score.
type PasswordPolicy struct {
	minLength int
	minScore  int
}

// NewPasswordPolicy applies defaults to opts.
func NewPasswordPolicy(opts PasswordPolicyOptions) *PasswordPolicy {
	if opts.MinLength <= 0 {
		opts.MinLength = defaultMinPasswordLength
	}
	if opts.MinStrengthScore > maxStrengthScore {
		opts.MinStrengthScore = maxStrengthScore
	}
	return &PasswordPolicy{minLength: opts.MinLength, minScore: opts.MinStrengthScore}
}

// Validate implements port.PasswordPolicyValidator. The display name and email
// feed zxcvbn so passwords derived from them score lower.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if n := len([]rune(password)); n < p.minLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.minLength),
		}
	}

	for _, class := range requiredClasses {
		if strings.IndexFunc(password, class.member) < 0 {
			return &PasswordValidationError{Code: class.code, Message: class.message}
		}
	}

	return p.checkStrength(password, ctx)
}

func (p *PasswordPolicy) checkStrength(password string, ctx domain.PasswordContext) error {
	if p.minScore <= 0 {
		return nil
	}

	var hints []string
	for _, hint := range []string{ctx.DisplayName, ctx.Email} {
		if hint != "" {
			hints = append(hints, hint)
		}
	}

	if zxcvbn.PasswordStrength(password, hints).Score >= p.minScore {
		return nil
	}
	return &PasswordValidationError{
		Code:    "weak_password",
		Message: "password is too weak; choose a more complex value",
	}
}

// Package validation provides custom validation rules for the application.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

var (
	// emailRegex is a basic email validation pattern
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// hexDigestRegex matches a lowercase or uppercase hex encoded SHA-256 digest
	hexDigestRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// SecretStrength describes what a shared secret must contain. Lengths count runes.
type SecretStrength struct {
	MinLength     int
	RequireUpper  bool
	RequireDigit  bool
	RequireSymbol bool
}

// SecretPolicy is the policy every shared secret must satisfy before a file is sealed.
var SecretPolicy = SecretStrength{
	MinLength:    20,
	RequireUpper: true,
}

type charClass struct {
	required bool
	match    func(rune) bool
	code     string
	message  string
}

// Validate implements validation.Rule.
func (p SecretStrength) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_secret_type", "secret must be a string")
	}

	if utf8.RuneCountInString(s) < p.MinLength {
		return validation.NewError(
			"validation_secret_min_length",
			fmt.Sprintf("secret must be at least %d characters", p.MinLength),
		)
	}

	classes := []charClass{
		{p.RequireUpper, unicode.IsUpper, "validation_secret_uppercase", "an uppercase letter"},
		{p.RequireDigit, unicode.IsDigit, "validation_secret_digit", "a digit"},
		{p.RequireSymbol, isSymbol, "validation_secret_symbol", "a punctuation or symbol character"},
	}
	for _, class := range classes {
		if class.required && strings.IndexFunc(s, class.match) < 0 {
			return validation.NewError(class.code, "secret must contain "+class.message)
		}
	}

	return nil
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// Email validates email format using regex
var Email = validation.NewStringRuleWithError(
	func(s string) bool {
		return emailRegex.MatchString(s)
	},
	validation.NewError("validation_email_format", "must be a valid email address"),
)

// HexDigest validates a hex encoded SHA-256 digest.
var HexDigest = validation.NewStringRuleWithError(
	func(s string) bool {
		return hexDigestRegex.MatchString(s)
	},
	validation.NewError("validation_hex_digest", "must be a 64 character hex encoded digest"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// NoControlChars rejects strings carrying control characters such as CR or LF.
var NoControlChars = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.IndexFunc(s, unicode.IsControl) < 0
	},
	validation.NewError("validation_no_control_chars", "must not contain control characters"),
)

// FileExtension returns a rule accepting file names whose extension is in allowed.
// An empty allowed list accepts every name.
func FileExtension(allowed []string) validation.Rule {
	return validation.NewStringRuleWithError(
		func(s string) bool {
			if len(allowed) == 0 {
				return true
			}
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(s), "."))
			return ext != "" && slices.Contains(allowed, ext)
		},
		validation.NewError(
			"validation_file_extension",
			fmt.Sprintf("file extension must be one of: %s", strings.Join(allowed, ", ")),
		),
	)
}

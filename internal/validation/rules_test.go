package validation

import (
	"errors"
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

func TestSecretPolicy(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		errMsg string
	}{
		{name: "valid secret", secret: "CorrectHorseBatteryStaple123!"},
		{name: "exactly twenty characters", secret: "Abcdefghijklmnopqrst"},
		{name: "nineteen characters", secret: "Abcdefghijklmnopqrs", errMsg: "at least 20 characters"},
		{name: "no uppercase", secret: "correcthorsebatterystaple123!", errMsg: "an uppercase letter"},
		{name: "multibyte characters count once", secret: "Ääääääääääääääääääää"},
		{name: "digits and symbols are optional", secret: "CorrectHorseBatteryStaple"},
		{name: "empty", secret: "", errMsg: "at least 20 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SecretPolicy.Validate(tt.secret)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestSecretStrength_CharacterClasses(t *testing.T) {
	strict := SecretStrength{MinLength: 8, RequireUpper: true, RequireDigit: true, RequireSymbol: true}

	tests := []struct {
		secret string
		code   string
	}{
		{"Sealed#2026", ""},
		{"Sh0rt!", "validation_secret_min_length"},
		{"sealed#2026", "validation_secret_uppercase"},
		{"Sealed#Drop", "validation_secret_digit"},
		{"Sealed2026x", "validation_secret_symbol"},
	}

	for _, tt := range tests {
		t.Run(tt.secret, func(t *testing.T) {
			err := strict.Validate(tt.secret)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			var verr validation.Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.code, verr.Code())
		})
	}

	assert.Error(t, strict.Validate(42))
}

func TestStringRules(t *testing.T) {
	tests := []struct {
		name  string
		rule  validation.Rule
		valid []string
		bad   []string
	}{
		{
			name:  "email",
			rule:  Email,
			valid: []string{"bob@example.com", "first.last+tag@mail.example.org"},
			bad:   []string{"bobexample.com", "bob@", "@example.com", "bob@example", "bob @example.com"},
		},
		{
			name:  "not blank",
			rule:  NotBlank,
			valid: []string{"report.pdf", " x "},
			bad:   []string{"   ", "\t\t", " \n "},
		},
		{
			name: "hex digest",
			rule: HexDigest,
			valid: []string{
				"fe98beb632ec761f47498b8338079b6c0683567ad1d95672752f4ff78c554319",
				"FE98BEB632EC761F47498B8338079B6C0683567AD1D95672752F4FF78C554319",
			},
			bad: []string{
				"fe98beb632ec761f47498b8338079b6c",
				"zz98beb632ec761f47498b8338079b6c0683567ad1d95672752f4ff78c554319",
				"CorrectHorseBatteryStaple123!",
			},
		},
		{
			name:  "no control chars",
			rule:  NoControlChars,
			valid: []string{"report 2026.pdf", "résumé.docx"},
			bad:   []string{"report.pdf\r\nX-Injected: 1", "tab\tname.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range tt.valid {
				assert.NoError(t, tt.rule.Validate(v), v)
			}
			for _, v := range tt.bad {
				assert.Error(t, tt.rule.Validate(v), v)
			}
		})
	}
}

func TestFileExtension(t *testing.T) {
	rule := FileExtension([]string{"pdf", "docx"})

	assert.NoError(t, rule.Validate("report.pdf"))
	assert.NoError(t, rule.Validate("REPORT.PDF"))
	assert.NoError(t, rule.Validate("letter.docx"))
	assert.Error(t, rule.Validate("noextension"))
	assert.ErrorContains(t, rule.Validate("archive.zip"), "pdf, docx")

	assert.NoError(t, FileExtension(nil).Validate("anything.bin"))
}

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(SecretPolicy.Validate("short"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "at least 20 characters")
}

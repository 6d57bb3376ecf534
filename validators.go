package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

const (
	passwordMinLength = 8
	passwordSymbols   = "@#$%^&+="
	markupCharacters  = "<>&"
)

// DefaultPhoneRegion is used when a phone number has no country prefix
const DefaultPhoneRegion = "ES"

// Alphanumeric accepts ASCII letters and digits only
var Alphanumeric = is.Alphanumeric

// Sanitized rejects values carrying markup
var Sanitized = validation.By(func(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, markupCharacters) {
		return errors.New("must not contain markup")
	}
	return nil
})

// EmailAddress accepts any RFC 5322 address, bare hosts included
var EmailAddress = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return errors.New("must be a valid email address")
	}
	return nil
})

// StrongPassword requires a digit, a lower and an upper case letter, one
// of @#$%^&+= and no whitespace.
var StrongPassword = validation.By(func(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	var digit, lower, upper, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			return errors.New("must not contain whitespace")
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}

	if len(s) < passwordMinLength || !digit || !lower || !upper || !symbol {
		return errors.New("must have at least 8 characters with a digit, a lower and an upper case letter and one of " + passwordSymbols)
	}
	return nil
})

// PhoneNumber validates numbers for the given default region
func PhoneNumber(region string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, err := NormalizePhone(s, region); err != nil {
			return errors.New("must be a valid phone number")
		}
		return nil
	})
}

// NormalizePhone parses raw and formats it as E.164
func NormalizePhone(raw, region string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", NewInvalidPhoneError(raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ValidationError turns ozzo errors into a go-errors validation error
// carrying every failing field. Rejected values are taken from values,
// keyed by json field name.
func ValidationError(err error, values ...map[string]any) error {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request").
			WithTextCode(TextCodeParamsValidation).
			WithCode(KindBadRequest.status())
	}

	fields := flattenValidation("", verrs)
	if len(values) > 0 {
		for i := range fields {
			fields[i].Value = values[0][fields[i].Field]
		}
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Field < fields[j].Field
	})

	return goerrors.NewValidation("invalid request", fields...).
		WithTextCode(TextCodeParamsValidation).
		WithCode(KindBadRequest.status())
}

func flattenValidation(prefix string, verrs validation.Errors) []goerrors.FieldError {
	out := []goerrors.FieldError{}
	for field, ferr := range verrs {
		if ferr == nil {
			continue
		}
		name := field
		if prefix != "" {
			name = prefix + "." + field
		}

		var nested validation.Errors
		if errors.As(ferr, &nested) {
			out = append(out, flattenValidation(name, nested)...)
			continue
		}
		out = append(out, goerrors.FieldError{Field: name, Message: ferr.Error()})
	}
	return out
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Surname1 string `json:"surname1,omitempty"`
	Surname2 string `json:"surname2,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Validate collects every failing field, strength rules are opt in
func (r RegisterRequest) Validate(enforceStrength bool) error {
	passwordRules := []validation.Rule{validation.Required, validation.Length(1, 100)}
	if enforceStrength {
		passwordRules = append(passwordRules, StrongPassword)
	}

	return ValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50), Alphanumeric),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 100), EmailAddress),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.Name, validation.Length(0, 50), Sanitized),
		validation.Field(&r.Surname1, validation.Length(0, 50), Sanitized),
		validation.Field(&r.Surname2, validation.Length(0, 50), Sanitized),
		validation.Field(&r.Phone, PhoneNumber(DefaultPhoneRegion)),
	), map[string]any{
		"username": r.Username,
		"email":    r.Email,
		"name":     r.Name,
		"surname1": r.Surname1,
		"surname2": r.Surname2,
		"phone":    r.Phone,
	})
}

// LoginRequest carries the credentials and whatever identifies the
// caller's current session.
type LoginRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	CurrentSessionID string `json:"-"`
	BearerToken      string `json:"-"`
}

func (r LoginRequest) Validate() error {
	return ValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Password, validation.Required),
	), map[string]any{"username": r.Username})
}

// BanRequest is the admin ban payload
type BanRequest struct {
	Reason string `json:"reason"`
}

func (r BanRequest) Validate() error {
	return ValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 255), Sanitized),
	))
}

// RoleCodes accepts a list of short alphanumeric role codes
var RoleCodes = validation.By(func(value any) error {
	codes, _ := value.([]string)
	for _, code := range codes {
		if err := validation.Validate(strings.TrimSpace(code), validation.Required, validation.Length(1, 10), Alphanumeric); err != nil {
			return fmt.Errorf("role %q: %w", code, err)
		}
	}
	return nil
})

// RolesRequest is the admin role assignment payload
type RolesRequest struct {
	Roles []string `json:"roles"`
}

func (r RolesRequest) Validate() error {
	return ValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Roles, validation.Required, RoleCodes),
	))
}

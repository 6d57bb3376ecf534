package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoEmptyString is returned when asked to hash an empty secret
var ErrNoEmptyString = newKindError(KindBadRequest, TextCodeParamsValidation, "password must not be empty")

// BcryptEncoder hashes secrets with bcrypt at a fixed cost
type BcryptEncoder struct {
	cost int
}

var _ PasswordEncoder = BcryptEncoder{}

// NewBcryptEncoder clamps cost into the range bcrypt accepts
func NewBcryptEncoder(cost int) BcryptEncoder {
	if cost < bcrypt.MinCost {
		cost = DefaultBcryptCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return BcryptEncoder{cost: cost}
}

// Encode will generate a password hash
func (b BcryptEncoder) Encode(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", wrapInternal(err, "failed to hash password")
	}
	return string(h), nil
}

// Matches will validate the given cleartext password matches the hashed
// password. bcrypt compares in constant time.
func (b BcryptEncoder) Matches(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return ErrInvalidCredentials.withCause(err)
	}
	return nil
}

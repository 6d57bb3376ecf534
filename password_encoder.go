package auth

import (
	"strings"
)

const (
	EncoderIDBcrypt = "bcrypt"

	encoderIDPrefix = "{"
	encoderIDSuffix = "}"
)

// DelegatingPasswordEncoder stores hashes as "{id}hash" and dispatches
// matching on the id, so stored hashes can move to a new algorithm over
// time. Hashes without a prefix are matched with the fallback encoder.
type DelegatingPasswordEncoder struct {
	idForEncode string
	encoders    map[string]PasswordEncoder
	fallback    PasswordEncoder
}

var _ PasswordEncoder = (*DelegatingPasswordEncoder)(nil)

// NewDelegatingPasswordEncoder encodes with encoders[idForEncode]
func NewDelegatingPasswordEncoder(idForEncode string, encoders map[string]PasswordEncoder) *DelegatingPasswordEncoder {
	return &DelegatingPasswordEncoder{
		idForEncode: idForEncode,
		encoders:    encoders,
		fallback:    encoders[idForEncode],
	}
}

// NewDefaultPasswordEncoder registers bcrypt as the only algorithm
func NewDefaultPasswordEncoder(cost int) *DelegatingPasswordEncoder {
	return NewDelegatingPasswordEncoder(EncoderIDBcrypt, map[string]PasswordEncoder{
		EncoderIDBcrypt: NewBcryptEncoder(cost),
	})
}

func (d *DelegatingPasswordEncoder) Encode(raw string) (string, error) {
	encoder, ok := d.encoders[d.idForEncode]
	if !ok {
		return "", ErrUnsupportedPasswordAlg.Clone(d.idForEncode)
	}

	hash, err := encoder.Encode(raw)
	if err != nil {
		return "", err
	}

	return encoderIDPrefix + d.idForEncode + encoderIDSuffix + hash, nil
}

func (d *DelegatingPasswordEncoder) Matches(raw, encoded string) error {
	id, hash, ok := splitEncoderID(encoded)
	if !ok {
		if d.fallback == nil {
			return ErrUnsupportedPasswordAlg
		}
		return d.fallback.Matches(raw, encoded)
	}

	encoder, found := d.encoders[id]
	if !found {
		return ErrUnsupportedPasswordAlg.Clone(id)
	}

	return encoder.Matches(raw, hash)
}

// NeedsUpgrade reports hashes not produced by the current encoder
func (d *DelegatingPasswordEncoder) NeedsUpgrade(encoded string) bool {
	id, _, ok := splitEncoderID(encoded)
	return !ok || id != d.idForEncode
}

func splitEncoderID(encoded string) (string, string, bool) {
	if !strings.HasPrefix(encoded, encoderIDPrefix) {
		return "", "", false
	}

	end := strings.Index(encoded, encoderIDSuffix)
	if end < 0 {
		return "", "", false
	}

	return encoded[len(encoderIDPrefix):end], encoded[end+len(encoderIDSuffix):], true
}

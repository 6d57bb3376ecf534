package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Tokens is the bundle returned by login and refresh. The same JSON is
// kept base64 encoded in the client's AUTH-JWT cookie.
type Tokens struct {
	JWT             string    `json:"jwt"`
	RefreshToken    string    `json:"refreshToken"`
	ExpireAt        time.Time `json:"expireAt"`
	ExpireRefreshAt time.Time `json:"expireRefreshAt"`
	User            UserView  `json:"userDto"`
	SessionID       string    `json:"-"`
}

// CookieValue encodes the bundle for the AUTH-JWT cookie
func (t *Tokens) CookieValue() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", wrapInternal(err, "failed to encode tokens")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTokensCookie reverses CookieValue, accepting both base64 alphabets
func DecodeTokensCookie(value string) (*Tokens, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrEmptyCookie
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		if raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "=")); err != nil {
			return nil, ErrUnauthorized.withCause(err)
		}
	}

	tokens := &Tokens{}
	if err := json.Unmarshal(raw, tokens); err != nil {
		return nil, ErrUnauthorized.withCause(err)
	}

	if tokens.JWT == "" {
		return nil, ErrUnauthorized
	}

	return tokens, nil
}

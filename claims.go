package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names are part of the wire format
const (
	ClaimSessionID = "sessionId"
	ClaimRoles     = "roles"
	ClaimScopes    = "scopes"
	ClaimModules   = "modules"
	ClaimRefresh   = "refresh"
)

// JWTClaims carries the registered claims plus the session binding
type JWTClaims struct {
	jwt.RegisteredClaims
	SessionID string   `json:"sessionId"`
	Roles     []string `json:"roles"`
	Scopes    []string `json:"scopes"`
	Modules   []string `json:"modules"`
	Refresh   bool     `json:"refresh"`
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Authorities returns the role codes granted to the subject
func (c *JWTClaims) Authorities() []string {
	return c.Roles
}

// HasRole checks the roles claim for the given code
func (c *JWTClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

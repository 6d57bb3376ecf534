//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost is lowered for race builds so suites stay within timeouts
const DefaultBcryptCost = bcrypt.DefaultCost

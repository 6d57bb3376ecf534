//go:build !race

package auth

const DefaultBcryptCost = 12

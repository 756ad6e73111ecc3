//go:build race

package login

import "golang.org/x/crypto/bcrypt"

// Reduce cost for race-enabled builds so test suites can run with strict timeouts.
const defaultBcryptCost = bcrypt.DefaultCost

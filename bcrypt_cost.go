//go:build !race

package login

const defaultBcryptCost = 12

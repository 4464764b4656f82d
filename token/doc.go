// Package token signs and verifies compact session tokens.
package token

// Package password hashes and verifies credentials with Argon2id, encoded
// as PHC strings so the parameters travel with the hash.
package password

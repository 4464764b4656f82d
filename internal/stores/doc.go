// Package stores holds the Redis-backed single-use token store and the
// refresh-token revocation set.
//
// The single correctness rule here is that check and act are one Redis
// operation. Redeeming an ephemeral token reads, validates, and flips its
// used flag inside one Lua script; two concurrent redemptions of the same
// token can never both succeed, whatever the interleaving of callers
// across server replicas.
package stores

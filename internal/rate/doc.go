// Package rate implements an exact sliding-window rate limiter on a Redis
// sorted set of request timestamps.
//
// Unlike fixed-bucket counters, the window trails the current instant:
// every check prunes entries older than now-window and counts what is
// left, so the reported count is exact at all times. Prune, count, add,
// and expire run as one Lua script; concurrent callers for the same
// identifier serialize inside Redis.
package rate

// Package redis holds the Redis-backed adapters: the per-poll voter dedupe
// markers, the poll tally cache, and the client hooks (circuit breaker and
// metrics) shared by both.
package redis

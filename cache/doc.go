// Package cache is the facade over the persistent result store.
//
// Result lists are stored per (query, engine) pair with a TTL. Expired entries
// are not deleted on read: normal search treats them as misses, while full-text
// search still finds them through LookupAny. CleanupExpired is the only way
// they leave the store.
//
// With WithSemanticIndex the cache also embeds queries, so a fresh entry can
// answer a differently worded query that embeds close enough to it.
package cache

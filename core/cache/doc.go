// Package cache provides a small key-value cache with LRU eviction and
// per-entry TTL.
//
// [LRU] is owned by a single goroutine and safe for concurrent use; call
// [LRU.Close] to stop it. [Nop] never stores anything. [NewTyped] wraps
// either in a type-safe [Typed].
//
// The command handler in package es keeps folded aggregate states here so a
// command only replays the events written since the cached version:
//
//	states := cache.NewTyped[State](cache.NewLRU(cache.LRUOpts{Size: 1024}))
//	states.Put("patient-42", st, cache.WithTTL(5*time.Minute))
package cache

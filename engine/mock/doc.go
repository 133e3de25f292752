// Package mock provides a configurable test double for engine.Engine.
//
// MockEngine can return fixed items, fail, sleep (with or without honoring
// the context), or panic, and it counts its calls.
package mock

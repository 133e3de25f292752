// Package config loads fathom's YAML configuration.
//
// A minimal file only names what differs from DefaultConfig:
//
//	storage:
//	  path: /var/lib/fathom
//	engines:
//	  failure_threshold: 3
//	  cooldown: 10m
//	embedding:
//	  host: http://localhost:11434
//	  model: embeddinggemma
//
// Durations use Go syntax ("250ms", "5m"). Omitting the embedding section
// disables the semantic query cache.
package config

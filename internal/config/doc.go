// Package config provides centralized configuration management for the
// AgentMesh daemon. It loads a single YAML file, fills in sensible defaults,
// and exposes typed accessors for downstream services.
package config

// Package config loads and validates the fleet configuration file.
//
// The configuration is an explicit struct constructed once at process start
// and passed into the orchestrator. Components never reach into process
// environment or globals; the only environment reads (provider API tokens)
// happen in the CLI handlers.
package config

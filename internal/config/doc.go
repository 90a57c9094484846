// Package config loads and validates the daemon configuration, covering the
// API server, registry policy, storage, queue, notification, ledger, and
// observability settings.
package config

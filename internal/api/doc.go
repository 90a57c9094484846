// Package api exposes the REST surface of the verification registry:
// proof submission (synchronous, asynchronous and batched), result and
// statistics lookups, and the administrator endpoints guarding registry
// parameters.
package api

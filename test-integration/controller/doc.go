// Package integration runs the connection controller end to end: the real
// controller, check, sync and post-sync workflows with their activities, an
// in-memory store, a feature flag file and a fake connector command service.
package integration

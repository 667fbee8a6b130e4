// Package testutil contains scripted producers used across tests: a model
// that replays canned deltas and a chain that drives callback handlers
// directly (including deliberately misbehaving sequences). They are not
// intended for production usage.
package testutil

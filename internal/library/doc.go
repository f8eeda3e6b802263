// Package library owns the task-library contract and its lifecycle.
//
// Ownership boundary:
// - the Library interface and status codes
// - the Instance state machine (unloaded, loaded, running)
// - task dispatch tables
// - factory registration and Go plugin loading
package library

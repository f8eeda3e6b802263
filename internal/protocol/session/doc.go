// Package session owns the driver<->worker envelope codecs.
//
// Ownership boundary:
// - load/run/unload request frames
// - reply frames carrying status, error text and encoded outputs
// - per-message field limits and reply timeouts
package session

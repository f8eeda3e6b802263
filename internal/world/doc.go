// Package world provides the collective group a library runs inside.
//
// Ownership boundary:
// - rank identity and world size
// - barrier, all-reduce and broadcast collectives
// - per-rank request and reply inboxes for an in-process group
package world

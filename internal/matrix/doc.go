// Package matrix owns distributed matrix handles.
//
// Ownership boundary:
// - descriptor shape and row-to-worker partition layout
// - driver-side handle registry (register, repartition, describe, retire)
// - default row assignment policies
//
// Matrix data never lives here. A descriptor is a capability token plus
// layout metadata; storage belongs to the numerical engine.
package matrix

// Package params owns the ParameterSet that carries task arguments and results.
//
// Ownership boundary:
// - insertion-ordered general, matrix, and pointer sub-namespaces
// - checked lookups and ordered traversal
// - record packing of a set for the wire
//
// A Set belongs to whichever side built it and is not safe for concurrent
// mutation.
package params

// Package protocol owns the typed value model that crosses the library boundary.
//
// Ownership boundary:
// - the closed, append-only type tag table
// - tagged values with checked extraction
// - per-value payload encoding and diagnostic rendering
//
// Framing lives in protocol/frame, record packing in protocol/tlv.
package protocol

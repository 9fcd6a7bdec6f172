// Package apng assembles and disassembles animated PNG (APNG) files.
//
// An Image is a list of frames plus canvas metadata. Assemble (or an Encoder)
// writes it as a PNG signature, an IHDR chunk, an acTL chunk, one fcTL chunk
// and one or more IDAT/fdAT chunks per frame, and a closing IEND chunk.
// Disassemble parses such a stream back into an Image. Only 8-bit RGBA
// truecolor with alpha is supported.
//
// The low-level chunk types (Chunk_IHDR, Chunk_acTL, Chunk_fcTL, ...) are
// exported for callers that want to lay out a stream themselves.
//
// For encoding details, see:
//
// https://wiki.mozilla.org/APNG_Specification
// https://www.w3.org/TR/PNG/
package apng

// Package protocol holds the declarative description of a JK BMS wire
// protocol and the machinery that turns a compact author-friendly
// definition into a validated, fully-resolved Specification plus a
// Decoder capable of turning response buffers into Records.
//
// The package is organized as:
//
//   - model.go   — the resolved in-memory types (Specification, Command,
//     Response, Item) and their lookup helpers.
//   - unpack.go  — Unpack(), which resolves a Definition (the compact,
//     author-facing shape) into a Specification, computing offsets and
//     validating the invariants in the accompanying design document.
//   - decode.go  — Decoder, built from a Specification, which decodes a
//     response buffer into a Record by walking its Item descriptors.
//   - errors.go  — sentinel errors and the structured ValidationError.
package protocol

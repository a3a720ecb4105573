// Package changelog provides the markdown changelog document model for smart-release.
//
// This package implements:
//   - The document model: a ChangeLog is an ordered list of Verbatim and Release sections,
//     each Release holding typed segments (user prose, conventional groupings and
//     machine-generated statistics, details and clippy blocks)
//   - A lossless codec between the model and markdown (Parse and WriteTo)
//   - The generator that merges newly classified commits into a release section
//
// Machine-generated blocks are marked with html-like tags such as
// <csr-read-only-do-not-edit/> and <csr-id-HEX/> so they can be recognized and
// replaced on later runs, while hand-written text is carried through verbatim.
package changelog

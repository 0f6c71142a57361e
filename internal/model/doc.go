// Package model defines the configuration object model for cibconf.
//
// A configuration is an ordered list of Objects, each of one Kind drawn from
// a closed registry (see KindSpec). Objects carry positional head tokens,
// container children, trailing name=value options and nested attribute
// blocks. The package also owns the two serialized forms of a configuration:
//
//   - canonical text, one statement per object (Render / Parse)
//   - raw form, the JSON encoding of a Document (MarshalDocument / UnmarshalDocument)
//
// and the primitives used by the commit protocol: Diff / Patch for
// incremental application, and Digest for baseline comparison.
//
// model imports nothing internal. Every other internal package builds on it.
package model

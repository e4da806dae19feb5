// Package filetree reads a source directory into an immutable in-memory tree
// and flattens that tree into (name, path, file) triples.
//
// Trees are built fresh for every generation pass. Hidden entries (names
// starting with ".") are never part of a tree.
package filetree

package filetree

import (
	"iter"
	"maps"
	"slices"
	"strings"
)

// Node is either a directory (Children non-nil) or a leaf file.
//
// Path is the entry's location inside the source filesystem and is the value
// used to open leaf files.
type Node struct {
	Name     string
	Path     string
	Children map[string]*Node
}

// IsDir reports whether n is a directory node.
func (n *Node) IsDir() bool { return n != nil && n.Children != nil }

// Leaf is one flattened file entry.
//
// Dir is the slash-joined chain of ancestor directory names below the walk
// root, with a trailing slash; it is empty for files directly under the root.
type Leaf struct {
	Name string
	Dir  string
	File string
}

// Leaves yields every leaf below n in sorted sibling order.
func (n *Node) Leaves() iter.Seq[Leaf] {
	return func(yield func(Leaf) bool) {
		if n == nil {
			return
		}
		if !n.IsDir() {
			yield(Leaf{Name: n.Name, File: n.Path})
			return
		}
		leaves(n, "", yield)
	}
}

func leaves(dir *Node, prefix string, yield func(Leaf) bool) bool {
	for _, name := range slices.Sorted(maps.Keys(dir.Children)) {
		child := dir.Children[name]
		if child.IsDir() {
			if !leaves(child, prefix+name+"/", yield) {
				return false
			}
			continue
		}
		if !yield(Leaf{Name: name, Dir: prefix, File: child.Path}) {
			return false
		}
	}
	return true
}

// VisitFunc receives one leaf: its own name, its relative directory path and
// its file path inside the source filesystem.
type VisitFunc func(name, path, file string) error

// Visit calls fn for every leaf below root. Siblings are visited sorted by name.
// The first error returned by fn stops the visit and is returned.
func Visit(root *Node, fn VisitFunc) error {
	for leaf := range root.Leaves() {
		if err := fn(leaf.Name, leaf.Dir, leaf.File); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of leaves below n.
func (n *Node) Count() int {
	count := 0
	for range n.Leaves() {
		count++
	}
	return count
}

// IsHidden reports whether a directory entry name is excluded from trees.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

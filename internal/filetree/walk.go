package filetree

import (
	"context"
	"os"
	"sync"

	billy "github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Walk reads dir from fs into a tree rooted at dir.
//
// Children of every directory are walked concurrently; a directory completes
// only after all of its children have. The first failure cancels the
// remaining siblings and is returned, discarding partial results.
func Walk(ctx context.Context, fs billy.Filesystem, dir string) (*Node, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "stat walk root").
			WithContext("path", dir).
			Build()
	}
	if !info.IsDir() {
		return nil, errors.FileSystemError("walk root is not a directory").
			WithContext("path", dir).
			Build()
	}
	return walkDir(ctx, fs, info.Name(), dir)
}

func walkDir(ctx context.Context, fs billy.Filesystem, name, dir string) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read directory").
			WithContext("path", dir).
			Build()
	}

	node := &Node{Name: name, Path: dir, Children: make(map[string]*Node, len(entries))}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		if IsHidden(entry.Name()) {
			continue
		}
		childPath := fs.Join(dir, entry.Name())
		isDir := entry.IsDir()
		if entry.Mode()&os.ModeSymlink != 0 {
			// Follow links; a dangling one stays a leaf and fails when read.
			if target, err := fs.Stat(childPath); err == nil {
				isDir = target.IsDir()
			}
		}
		if !isDir {
			mu.Lock()
			node.Children[entry.Name()] = &Node{Name: entry.Name(), Path: childPath}
			mu.Unlock()
			continue
		}

		childName := entry.Name()
		g.Go(func() error {
			child, err := walkDir(gctx, fs, childName, childPath)
			if err != nil {
				return err
			}
			mu.Lock()
			node.Children[childName] = child
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return node, nil
}

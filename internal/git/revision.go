// Package git reads version-control state of the source tree.
package git

import (
	stderrors "errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

const shortHashLen = 12

// HeadRevision returns the abbreviated HEAD commit of the repository that
// contains dir. It returns an empty string without error when dir is not
// inside a repository or the repository has no commits yet.
func HeadRevision(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if stderrors.Is(err, git.ErrRepositoryNotExists) {
			return "", nil
		}
		return "", errors.WrapError(err, errors.CategoryFileSystem, "open repository").
			WithContext("path", dir).
			Warning().
			Build()
	}

	head, err := repo.Head()
	if err != nil {
		if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", errors.WrapError(err, errors.CategoryFileSystem, "resolve HEAD").
			WithContext("path", dir).
			Warning().
			Build()
	}

	hash := head.Hash().String()
	if len(hash) > shortHashLen {
		hash = hash[:shortHashLen]
	}
	return hash, nil
}

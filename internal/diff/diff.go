// Package diff compares two artifacts path by path.
package diff

import (
	"slices"
)

// Status classifies one changed path.
type Status string

// Change statuses.
const (
	Added    Status = "added"
	Modified Status = "modified"
	Deleted  Status = "deleted"
)

// Change is one path whose content differs between the two sides.
type Change struct {
	Path       string `json:"path"`
	Status     Status `json:"status"`
	OldHash    string `json:"oldHash,omitempty"`
	NewHash    string `json:"newHash,omitempty"`
	OldContent string `json:"oldContent,omitempty"`
	NewContent string `json:"newContent,omitempty"`
}

// Summary counts changes per status.
type Summary struct {
	Added    int `json:"added"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

// Result is the comparison of a base artifact against a compare artifact.
type Result struct {
	BaseID     string   `json:"baseId"`
	CompareID  string   `json:"compareId"`
	Changes    []Change `json:"changes"`
	Summary    Summary  `json:"summary"`
	HasChanges bool     `json:"hasChanges"`
}

// Side is one artifact reduced to its path hashes and, when available,
// its content.
type Side struct {
	ID      string
	Hashes  map[string]string
	Content map[string][]byte
}

// Compute compares base against compare. Paths only in compare are added,
// paths only in base are deleted, and paths whose hashes differ are
// modified. Changes are ordered by path.
func Compute(base, compare Side) Result {
	res := Result{
		BaseID:    base.ID,
		CompareID: compare.ID,
		Changes:   []Change{},
	}

	paths := make([]string, 0, len(base.Hashes)+len(compare.Hashes))
	for p := range base.Hashes {
		paths = append(paths, p)
	}
	for p := range compare.Hashes {
		if _, ok := base.Hashes[p]; !ok {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)

	for _, p := range paths {
		oldHash, inBase := base.Hashes[p]
		newHash, inCompare := compare.Hashes[p]

		var c Change
		switch {
		case !inBase:
			c = Change{Path: p, Status: Added, NewHash: newHash}
			res.Summary.Added++
		case !inCompare:
			c = Change{Path: p, Status: Deleted, OldHash: oldHash}
			res.Summary.Deleted++
		case oldHash != newHash:
			c = Change{Path: p, Status: Modified, OldHash: oldHash, NewHash: newHash}
			res.Summary.Modified++
		default:
			continue
		}
		if inBase {
			c.OldContent = string(base.Content[p])
		}
		if inCompare {
			c.NewContent = string(compare.Content[p])
		}
		res.Changes = append(res.Changes, c)
	}

	res.HasChanges = len(res.Changes) > 0
	return res
}

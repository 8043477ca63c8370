// Package hierarchy resolves discovered candidates into a forest of main
// tables and the child tables nested under them.
package hierarchy

import (
	"fmt"

	"xmlcsv/internal/discover"
	"xmlcsv/internal/xmlpath"
)

// Table is one main record path together with every candidate strictly
// nested under it.
type Table struct {
	Main     discover.Candidate
	Children []discover.Candidate
}

// FilterContainers drops candidates that carry no extractable data: pure
// wrapper elements whose fields are all sample-less element references.
func FilterContainers(cands []discover.Candidate) []discover.Candidate {
	out := make([]discover.Candidate, 0, len(cands))
	for _, c := range cands {
		for _, f := range c.Fields {
			if f.HasContent() {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Resolve partitions candidates into main tables and their children.
//
// A candidate is a main unless it nests strictly under another candidate.
// When that leaves exactly one main and it occurred only once, it is a
// document wrapper: it is discarded and the mains are recomputed among the
// remaining candidates.
func Resolve(cands []discover.Candidate) []Table {
	mains := topLevel(cands)

	if len(mains) == 1 && mains[0].EstimatedCount == 1 {
		wrapper := mains[0].RecordPath
		rest := make([]discover.Candidate, 0, len(cands)-1)
		for _, c := range cands {
			if c.RecordPath != wrapper {
				rest = append(rest, c)
			}
		}
		mains = topLevel(rest)
		cands = rest
	}

	tables := make([]Table, 0, len(mains))
	for _, main := range mains {
		t := Table{Main: main}
		for _, c := range cands {
			if c.RecordPath != main.RecordPath && xmlpath.IsAncestor(main.RecordPath, c.RecordPath) {
				t.Children = append(t.Children, c)
			}
		}
		tables = append(tables, t)
	}
	return tables
}

func topLevel(cands []discover.Candidate) []discover.Candidate {
	var out []discover.Candidate
	for _, c := range cands {
		nested := false
		for _, other := range cands {
			if other.RecordPath != c.RecordPath && xmlpath.IsAncestor(other.RecordPath, c.RecordPath) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the partition invariant: no candidate may be assigned to
// more than one table slot across the forest.
func Validate(tables []Table) error {
	owner := make(map[string]int)
	for _, t := range tables {
		owner[t.Main.RecordPath]++
		for _, c := range t.Children {
			owner[c.RecordPath]++
		}
	}
	for path, n := range owner {
		if n > 1 {
			return fmt.Errorf("candidate %q assigned %d times", path, n)
		}
	}
	return nil
}

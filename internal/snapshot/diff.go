package snapshot

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffResult is the unified line diff between two snapshots of a source.
type DiffResult struct {
	SourceKey    string `json:"source_key"`
	FromLabel    string `json:"from_label"`
	ToLabel      string `json:"to_label"`
	Unified      string `json:"unified"`
	AddedLines   int    `json:"added_lines"`
	RemovedLines int    `json:"removed_lines"`
}

// Changed reports whether the diff found any line-level difference.
func (d DiffResult) Changed() bool { return d.AddedLines > 0 || d.RemovedLines > 0 }

func diffSnapshots(from, to Snapshot) (DiffResult, error) {
	a := difflib.SplitLines(from.Content)
	b := difflib.SplitLines(to.Content)
	ud := difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: from.Label,
		ToFile:   to.Label,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return DiffResult{}, fmt.Errorf("unified diff %s..%s: %w", from.Label, to.Label, err)
	}

	added, removed := countChangedLines(a, b)
	return DiffResult{
		SourceKey:    from.SourceKey,
		FromLabel:    from.Label,
		ToLabel:      to.Label,
		Unified:      text,
		AddedLines:   added,
		RemovedLines: removed,
	}, nil
}

// countChangedLines counts from the matcher's opcodes rather than the
// rendered diff text, where content lines starting with "-" or "+" are
// indistinguishable from diff markup.
func countChangedLines(a, b []string) (added, removed int) {
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'r':
			removed += op.I2 - op.I1
			added += op.J2 - op.J1
		case 'd':
			removed += op.I2 - op.I1
		case 'i':
			added += op.J2 - op.J1
		}
	}
	return added, removed
}

// Package document implements the line-oriented document model, the
// single-segment per-line diff engine, operation apply, and the
// conflict-resolving deterministic merge that every peer computes
// identically from the same batch of operations.
package document

import (
	"sort"

	"github.com/Narendra20078/AtomEdit/internal/types"
)

// Document is a sequence of lines addressed by zero-based index.
type Document struct {
	Lines []string
}

// Clone returns an independent copy of d.
func (d Document) Clone() Document {
	out := make([]string, len(d.Lines))
	copy(out, d.Lines)
	return Document{Lines: out}
}

func New(lines []string) Document {
	cp := make([]string, len(lines))
	copy(cp, lines)
	return Document{Lines: cp}
}

// ensure extends d so that line index i exists, materializing missing lines
// as empty strings.
func (d *Document) ensure(i int) {
	for len(d.Lines) <= i {
		d.Lines = append(d.Lines, "")
	}
}

// Diff produces one Operation per differing line index in [0, max(|a|,|b|)),
// stamped with author/timestamp/sequence by the caller-supplied stamper.
func Diff(a, b []string, stamp func() (author string, timestamp int64, sequence int64)) []types.Operation {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var ops []types.Operation
	for i := 0; i < n; i++ {
		var av, bv string
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av == bv {
			continue
		}
		ops = append(ops, diffLine(i, av, bv, stamp))
	}
	return ops
}

// diffLine computes the common-prefix/common-suffix single-segment diff of
// one line, per spec §4.3.
func diffLine(line int, a, b string, stamp func() (string, int64, int64)) types.Operation {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	s := 0
	for s < minLen && a[s] == b[s] {
		s++
	}
	ae, be := len(a)-1, len(b)-1
	for ae >= s && be >= s && a[ae] == b[be] {
		ae--
		be--
	}

	var oldSeg, newSeg string
	if s <= ae {
		oldSeg = a[s : ae+1]
	}
	if s <= be {
		newSeg = b[s : be+1]
	}

	kind := types.Replace
	switch {
	case oldSeg == "":
		kind = types.Insert
	case newSeg == "":
		kind = types.Delete
	}

	author, ts, seq := stamp()
	return types.Operation{
		Kind:      kind,
		Line:      line,
		C0:        s,
		C1:        be + 1,
		Old:       oldSeg,
		New:       newSeg,
		Author:    author,
		Timestamp: ts,
		Sequence:  seq,
	}
}

// Apply applies operation o to d in place. It is idempotent under o's
// fingerprint: applying the same op twice to the state it was derived from
// leaves the line unchanged the second time.
func Apply(d *Document, o types.Operation) {
	d.ensure(o.Line)
	line := d.Lines[o.Line]

	s := o.C0
	if s > len(line) {
		s = len(line)
	}
	e := o.C1
	if e > len(line) {
		e = len(line)
	}

	switch o.Kind {
	case types.Insert:
		if !(s+len(o.New) <= len(line) && line[s:min(s+len(o.New), len(line))] == o.New) {
			d.Lines[o.Line] = line[:s] + o.New + line[s:]
		}
	case types.Delete:
		if s+len(o.Old) <= len(line) && line[s:s+len(o.Old)] == o.Old {
			d.Lines[o.Line] = line[:s] + line[s+len(o.Old):]
		}
	case types.Replace:
		if len(o.Old) > 0 && s+len(o.Old) <= len(line) && line[s:s+len(o.Old)] == o.Old {
			d.Lines[o.Line] = line[:s] + o.New + line[s+len(o.Old):]
		} else if !(s+len(o.New) <= len(line) && line[s:min(s+len(o.New), len(line))] == o.New) {
			// Expected old text is gone: the op was superseded or is a
			// duplicate. Falls back to an INSERT at s with the same guard.
			d.Lines[o.Line] = line[:s] + o.New + line[s:]
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Conflicts reports whether a and b target the same line with overlapping
// column ranges.
func Conflicts(a, b types.Operation) bool {
	if a.Line != b.Line {
		return false
	}
	return !(a.C1 <= b.C0 || b.C1 <= a.C0)
}

// Wins reports whether a beats b in the total order of spec §4.5: larger
// timestamp wins, then larger sequence, then lexicographically smaller
// author.
func Wins(a, b types.Operation) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	if a.Sequence != b.Sequence {
		return a.Sequence > b.Sequence
	}
	return a.Author < b.Author
}

// SeenSet tracks applied-operation fingerprints. The zero value is a nil map:
// Has works on it, but Add panics; use NewSeenSet for an empty usable set.
type SeenSet map[string]struct{}

func NewSeenSet() SeenSet { return make(SeenSet) }

func (s SeenSet) Has(fp string) bool { _, ok := s[fp]; return ok }
func (s SeenSet) Add(fp string)      { s[fp] = struct{}{} }

// Merge computes the winner set of batch v against d's current state (read
// fresh by the caller into d before calling Merge) and applies winners in
// application order, skipping any whose fingerprint is already in seen.
// Every peer given the same v and d computes the same result.
func Merge(d *Document, v []types.Operation, seen SeenSet) {
	ordered := make([]types.Operation, len(v))
	copy(ordered, v)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.Author < b.Author
	})

	winners := make([]types.Operation, 0, len(ordered))
	for i, candidate := range ordered {
		ok := true
		for j, other := range ordered {
			if i == j {
				continue
			}
			if Conflicts(candidate, other) && !Wins(candidate, other) {
				ok = false
				break
			}
		}
		if ok {
			winners = append(winners, candidate)
		}
	}

	for _, w := range winners {
		fp := w.Fingerprint()
		if seen.Has(fp) {
			continue
		}
		Apply(d, w)
		seen.Add(fp)
	}
}

package pdg

import "sort"

type declSpan struct {
	id    int
	begin int
	end   int // exclusive
}

// DeclIndex maps source offsets to the declaration nodes enclosing them.
type DeclIndex struct {
	byFile map[string][]declSpan
}

// DeclIndex builds the per-file index over Decl.* nodes.
func (g *Graph) DeclIndex() *DeclIndex {
	idx := &DeclIndex{byFile: make(map[string][]declSpan)}
	for _, n := range g.nodes {
		if n.Type > DeclDestructor || n.File == "" {
			continue
		}
		idx.byFile[n.File] = append(idx.byFile[n.File], declSpan{id: n.ID, begin: n.Start, end: n.End + 1})
	}
	for _, spans := range idx.byFile {
		sort.Slice(spans, func(i, j int) bool {
			if spans[i].begin != spans[j].begin {
				return spans[i].begin < spans[j].begin
			}
			return spans[i].id < spans[j].id
		})
	}
	return idx
}

// Lookup returns the declaration whose range encloses offset most tightly:
// the one minimizing the sum of squared distances from offset to both range
// endpoints. Equal scores go to the lower id.
func (x *DeclIndex) Lookup(file string, offset int) (int, bool) {
	spans := x.byFile[file]
	// spans are sorted by begin; nothing past the first begin > offset can enclose it
	limit := sort.Search(len(spans), func(i int) bool { return spans[i].begin > offset })

	best, bestScore := 0, -1
	for _, s := range spans[:limit] {
		if offset >= s.end {
			continue
		}
		db, de := offset-s.begin, offset-s.end
		score := db*db + de*de
		if bestScore < 0 || score < bestScore || (score == bestScore && s.id < best) {
			best, bestScore = s.id, score
		}
	}
	return best, bestScore >= 0
}

package chars

// Patterns is a matrix with identical site columns merged. Both the
// parsimony and the likelihood engines work on patterns and multiply
// per-pattern results by pattern weights.
type Patterns struct {
	// Rows[taxon][pattern] is the state of a taxon in a pattern.
	Rows [][]State
	// Weights[pattern] is the number of sites with this pattern.
	Weights []int
	// SitePattern[site] is the pattern of an original site.
	SitePattern []int
}

// Len returns the number of patterns.
func (p *Patterns) Len() int {
	return len(p.Weights)
}

// Patterns returns the compressed site patterns. Patterns are ordered
// by their first occurrence. The result is computed once and must not
// be modified.
func (m *Matrix) Patterns() *Patterns {
	m.patternsOnce.Do(m.compress)
	return m.patterns
}

func (m *Matrix) compress() {
	p := &Patterns{
		Rows:        make([][]State, len(m.taxa)),
		SitePattern: make([]int, m.nSites),
	}
	seen := make(map[string]int, m.nSites)
	col := make([]byte, len(m.taxa))
	for site := 0; site < m.nSites; site++ {
		for i := range m.rows {
			col[i] = byte(m.rows[i][site])
		}
		key := string(col)
		pat, ok := seen[key]
		if !ok {
			pat = len(p.Weights)
			seen[key] = pat
			p.Weights = append(p.Weights, 0)
			for i := range m.rows {
				p.Rows[i] = append(p.Rows[i], m.rows[i][site])
			}
		}
		p.Weights[pat]++
		p.SitePattern[site] = pat
	}
	m.patterns = p
}

package fluxmend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend/flux"
	"github.com/himanishpuri/FluxMend/pkg/logger"
)

// Reading is one distinct cell sequence seen for the target sector, with
// how many captures produced it.
type Reading struct {
	Seq     flux.Sequence
	Count   int
	Sources []string

	order int
}

type TokenKind int

const (
	Run TokenKind = iota
	Divergence
)

// Token is one column of a report row. A Run is agreed by every row and
// renders as its length; a Divergence renders its cells, which may be
// empty for some rows.
type Token struct {
	Kind  TokenKind
	Cells flux.Sequence
}

func (t Token) Len() int { return len(t.Cells) }

func (t Token) String() string {
	if t.Kind == Run {
		return fmt.Sprintf("[%d]", len(t.Cells))
	}
	return string(t.Cells)
}

// Row is one reading's view in a report. Rows of the same report have the
// same token kinds at the same positions.
type Row struct {
	Rank        int
	Reading     Reading
	Tokens      []Token
	OutOfFamily bool
}

func (r Row) Len() int {
	n := 0
	for _, t := range r.Tokens {
		n += t.Len()
	}
	return n
}

func (r Row) DivergenceLen() int {
	n := 0
	for _, t := range r.Tokens {
		if t.Kind == Divergence {
			n += t.Len()
		}
	}
	return n
}

// Span joins the cells of tokens [i, j).
func (r Row) Span(i, j int) flux.Sequence {
	parts := make([]flux.Sequence, 0, j-i)
	for _, t := range r.Tokens[i:j] {
		parts = append(parts, t.Cells)
	}
	return flux.Concat(parts...)
}

// Report is the result of one Comparator.Analyze call, rows in rank order.
type Report struct {
	Rows []Row
}

// Divergence is the summed divergence length over all rows.
func (r *Report) Divergence() int {
	n := 0
	for _, row := range r.Rows {
		n += row.DivergenceLen()
	}
	return n
}

func (r *Report) OutOfFamily() []int {
	var ranks []int
	for _, row := range r.Rows {
		if row.OutOfFamily {
			ranks = append(ranks, row.Rank)
		}
	}
	return ranks
}

func (r *Report) String() string {
	var b strings.Builder
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "R %2d %4d", row.Rank, row.Reading.Count)
		for _, t := range row.Tokens {
			if t.Len() > 0 {
				b.WriteString(" ")
				b.WriteString(t.String())
			}
		}
		if row.OutOfFamily {
			fmt.Fprintf(&b, "  # out of family (%d cells)", row.Len())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Comparator collects readings of one sector and reports where they agree.
type Comparator struct {
	// AnchorLength, when positive, splits disagreeing interiors at the
	// leftmost substring of that many cells found exactly once in every
	// row, and reduces each side again.
	AnchorLength int

	log      Logger
	readings []*Reading
	bySeq    map[flux.Sequence]*Reading
	dropped  map[flux.Sequence]bool
	next     int
	current  *Report
}

func NewComparator(anchorLength int, log Logger) *Comparator {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Comparator{
		AnchorLength: anchorLength,
		log:          log,
		bySeq:        make(map[flux.Sequence]*Reading),
		dropped:      make(map[flux.Sequence]bool),
	}
}

// AddReading records seq as seen in source. Identical sequences share one
// Reading. Sequences dropped earlier in the session are ignored and
// AddReading returns false.
func (c *Comparator) AddReading(seq flux.Sequence, source string) bool {
	if c.dropped[seq] {
		c.log.Debugf("ignoring dropped reading from %s", source)
		return false
	}
	c.current = nil

	if r, ok := c.bySeq[seq]; ok {
		r.Count++
		r.Sources = append(r.Sources, source)
		return true
	}
	r := &Reading{Seq: seq, Count: 1, Sources: []string{source}, order: c.next}
	c.next++
	c.readings = append(c.readings, r)
	c.bySeq[seq] = r
	return true
}

// Len is the number of distinct readings.
func (c *Comparator) Len() int { return len(c.readings) }

// Readings returns copies of the readings in rank order.
func (c *Comparator) Readings() []Reading {
	ranked := make([]Reading, len(c.readings))
	for i, r := range c.readings {
		ranked[i] = *r
		ranked[i].Sources = append([]string(nil), r.Sources...)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].order < ranked[j].order
	})
	return ranked
}

// Analyze ranks the readings by multiplicity and tokenises them into
// agreed runs and per-row divergences. The report stays current until the
// next AddReading or Pop.
func (c *Comparator) Analyze() *Report {
	ranked := c.Readings()
	seqs := make([]flux.Sequence, len(ranked))
	for i, r := range ranked {
		seqs[i] = r.Seq
	}

	rep := &Report{Rows: make([]Row, len(ranked))}
	columns := c.align(seqs)
	for i, r := range ranked {
		rep.Rows[i] = Row{
			Rank:        i,
			Reading:     r,
			Tokens:      columns[i],
			OutOfFamily: len(r.Seq) != len(seqs[0]),
		}
	}

	c.log.Debugf("analyzed %d readings, divergence %d", len(ranked), rep.Divergence())
	c.current = rep
	return rep
}

// Current returns the last report, or ErrNoReport if readings changed
// since it was produced.
func (c *Comparator) Current() (*Report, error) {
	if c.current == nil {
		return nil, ErrNoReport
	}
	return c.current, nil
}

// Pop removes the reading at rank in the current report. The sequence is
// remembered and never re-admitted.
func (c *Comparator) Pop(rank int) error {
	if c.current == nil {
		return ErrNoReport
	}
	if rank < 0 || rank >= len(c.current.Rows) {
		return fmt.Errorf("%w: %d of %d", ErrRankOutOfRange, rank, len(c.current.Rows))
	}

	popped := c.current.Rows[rank].Reading
	seq := popped.Seq
	for i, r := range c.readings {
		if r.Seq == seq {
			c.readings = append(c.readings[:i], c.readings[i+1:]...)
			break
		}
	}
	delete(c.bySeq, seq)
	c.dropped[seq] = true
	c.current = nil

	c.log.Infof("dropped rank %d (%d cells, seen %d times)", rank, len(seq), popped.Count)
	return nil
}

// align returns one token list per sequence. Lists have equal length and
// matching kinds column by column.
func (c *Comparator) align(seqs []flux.Sequence) [][]Token {
	rows := make([][]Token, len(seqs))
	if len(seqs) == 0 {
		return rows
	}
	reduce(seqs, c.AnchorLength, rows)
	return tidy(rows)
}

// reduce appends the tokens for seqs to rows: common prefix, interior,
// common suffix.
func reduce(seqs []flux.Sequence, anchor int, rows [][]Token) {
	p := commonPrefix(seqs)
	rest := make([]flux.Sequence, len(seqs))
	for i, s := range seqs {
		rest[i] = s[p:]
	}
	n := commonSuffix(rest)
	interior := make([]flux.Sequence, len(seqs))
	for i, s := range rest {
		interior[i] = s[:len(s)-n]
	}

	appendRun(rows, seqs[0][:p])

	if at, ok := findAnchor(interior, anchor); ok {
		left := make([]flux.Sequence, len(seqs))
		right := make([]flux.Sequence, len(seqs))
		for i, s := range interior {
			left[i], right[i] = s[:at[i]], s[at[i]+anchor:]
		}
		reduce(left, anchor, rows)
		appendRun(rows, interior[0][at[0]:at[0]+anchor])
		reduce(right, anchor, rows)
	} else {
		for i := range rows {
			rows[i] = append(rows[i], Token{Kind: Divergence, Cells: interior[i]})
		}
	}

	appendRun(rows, rest[0][len(rest[0])-n:])
}

func appendRun(rows [][]Token, cells flux.Sequence) {
	for i := range rows {
		rows[i] = append(rows[i], Token{Kind: Run, Cells: cells})
	}
}

// findAnchor looks for the leftmost substring of the first interior, of
// the given length, that occurs exactly once in every interior.
func findAnchor(interior []flux.Sequence, length int) ([]int, bool) {
	if length <= 0 || len(interior) < 2 {
		return nil, false
	}
	top := interior[0]
	at := make([]int, len(interior))
	for start := 0; start+length <= len(top); start++ {
		pat := top[start : start+length]
		ok := true
		for i, s := range interior {
			pos := s.Index(pat, 0)
			if pos < 0 || s.Index(pat, pos+1) >= 0 {
				ok = false
				break
			}
			at[i] = pos
		}
		if ok {
			return at, true
		}
	}
	return nil, false
}

// tidy drops columns that are empty in every row and merges neighbouring
// runs.
func tidy(rows [][]Token) [][]Token {
	out := make([][]Token, len(rows))
	for col := range rows[0] {
		empty := true
		for _, r := range rows {
			if r[col].Len() > 0 {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		for i, r := range rows {
			t := r[col]
			if k := len(out[i]); k > 0 && t.Kind == Run && out[i][k-1].Kind == Run {
				out[i][k-1].Cells += t.Cells
				continue
			}
			out[i] = append(out[i], t)
		}
	}
	return out
}

func commonPrefix(seqs []flux.Sequence) int {
	n := len(seqs[0])
	for _, s := range seqs[1:] {
		if len(s) < n {
			n = len(s)
		}
		for i := 0; i < n; i++ {
			if s[i] != seqs[0][i] {
				n = i
				break
			}
		}
	}
	return n
}

func commonSuffix(seqs []flux.Sequence) int {
	first := seqs[0]
	n := len(first)
	for _, s := range seqs[1:] {
		if len(s) < n {
			n = len(s)
		}
		for i := 1; i <= n; i++ {
			if s[len(s)-i] != first[len(first)-i] {
				n = i - 1
				break
			}
		}
	}
	return n
}

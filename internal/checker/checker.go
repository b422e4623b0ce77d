// Package checker decides whether the target function refines the
// source function. Structurally identical functions refine trivially;
// everything else is handed to the SMT back-end.
package checker

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Pheeck/smtgcc/internal/diag"
	"github.com/Pheeck/smtgcc/internal/ir"
)

// Stats is the per-solver timing report: the wall-clock time of each
// of the three queries (return value, memory, UB), in milliseconds.
// Skipped is set when the solver did not run, e.g. because the check
// timed out before its turn.
type Stats struct {
	Skipped bool
	Time    [3]uint64
}

// Solver is one SMT back-end. A check returns an optional
// human-readable counterexample; the empty string means the check
// passed or timed out ("unverified" is not a counterexample).
type Solver interface {
	CheckRefine(src, tgt *ir.Function) (Stats, string)
	CheckUB(f *ir.Function) (Stats, string)
	CheckAssert(f *ir.Function) (Stats, string)
}

// Checker runs the configured solvers and reports their timings. The
// solvers run in order; the last counterexample wins, matching the
// behavior of running one trusted solver after a faster one.
type Checker struct {
	log     *diag.Logger
	solvers []Solver
}

// New creates a checker writing diagnostics to log.
func New(log *diag.Logger, solvers ...Solver) *Checker {
	return &Checker{log: log, solvers: solvers}
}

// CheckRefine reports whether the module's "tgt" function refines its
// "src" function. The returned string is empty when refinement holds
// and holds the counterexample otherwise.
func (c *Checker) CheckRefine(m *ir.Module) (string, error) {
	if len(m.Functions) != 2 {
		return "", errors.Errorf("refinement needs two functions, module has %d",
			len(m.Functions))
	}
	src := m.Functions[0]
	tgt := m.Functions[1]
	if src.Name != "src" {
		src, tgt = tgt, src
	}
	if src.Name != "src" || tgt.Name != "tgt" {
		return "", errors.New("module functions must be named src and tgt")
	}

	if ir.Identical(src, tgt) {
		return "", nil
	}

	c.log.Dump(2, ir.FormatModule(m))

	var msg string
	stats := make([]Stats, 0, len(c.solvers))
	for _, s := range c.solvers {
		st, m := s.CheckRefine(src, tgt)
		stats = append(stats, st)
		if m != "" {
			msg = m
		}
	}
	c.reportTimes(stats)
	return msg, nil
}

// CheckUB reports a counterexample input that makes the function's
// execution undefined, or the empty string.
func (c *Checker) CheckUB(f *ir.Function) (string, error) {
	c.log.Dump(2, ir.FormatFunction(f))

	var msg string
	stats := make([]Stats, 0, len(c.solvers))
	for _, s := range c.solvers {
		st, m := s.CheckUB(f)
		stats = append(stats, st)
		if m != "" {
			msg = m
		}
	}
	c.reportTimes(stats)
	return msg, nil
}

// CheckAssert reports a counterexample input violating an ASSERT in
// the function, or the empty string.
func (c *Checker) CheckAssert(f *ir.Function) (string, error) {
	c.log.Dump(2, ir.FormatFunction(f))

	var msg string
	stats := make([]Stats, 0, len(c.solvers))
	for _, s := range c.solvers {
		st, m := s.CheckAssert(f)
		stats = append(stats, st)
		if m != "" {
			msg = m
		}
	}
	c.reportTimes(stats)
	return msg, nil
}

// reportTimes writes one "SMTGCC: time:" line with the per-query
// times of every solver, unless no solver ran.
func (c *Checker) reportTimes(stats []Stats) {
	ran := false
	for _, st := range stats {
		ran = ran || !st.Skipped
	}
	if !ran {
		return
	}

	var b strings.Builder
	for i, st := range stats {
		for j := 0; j < len(st.Time); j++ {
			if i > 0 || j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatUint(st.Time[j], 10))
		}
	}
	c.log.Notef(1, "SMTGCC: time: %s", b.String())
}

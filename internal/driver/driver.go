// Package driver runs one method's abstract interpretation to a fixed
// point (spec.md §4.5, §4.7): it seeds the entry state from the
// method's signature, drains the worklist, and collects reachability
// and dead-argument/dead-store bookkeeping into a Result. It is the
// one package that knows about all of opcode, domain, store, frame,
// heap, state, worklist, transfer, terminal, config and analysiserr at
// once — the same role the teacher's top-level VM loop plays over its
// own bytecode and call-frame stack (funvibe-funxy/internal/vm/vm.go).
package driver

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jpamb-tools/debloatcore/internal/analysiserr"
	"github.com/jpamb-tools/debloatcore/internal/config"
	"github.com/jpamb-tools/debloatcore/internal/domain"
	"github.com/jpamb-tools/debloatcore/internal/frame"
	"github.com/jpamb-tools/debloatcore/internal/opcode"
	"github.com/jpamb-tools/debloatcore/internal/state"
	"github.com/jpamb-tools/debloatcore/internal/terminal"
	"github.com/jpamb-tools/debloatcore/internal/transfer"
	"github.com/jpamb-tools/debloatcore/internal/worklist"
)

// Result is the per-method outcome spec.md §6 requires the core to
// hand back to the (out-of-scope) rewriter collaborator.
type Result struct {
	Method opcode.ID
	// RunID correlates one invocation of Analyze across logs, not
	// named by spec.md itself — an ambient diagnostics addition
	// (SPEC_FULL.md §A).
	RunID uuid.UUID

	DeadLines  []int
	DeadArgs   []int
	FixedPoint bool
	Terminals  []terminal.Tag

	// StraightLine reports whether the method's bytecode contains no
	// branch opcode at all (SPEC_FULL.md §C, supplemented from
	// original_source/): a cheap signal the rewriter collaborator can
	// use to skip fixed-point bookkeeping entirely for leaf methods.
	StraightLine bool

	Iterations int
}

// domainFor resolves config.Config.Domain to a domain.Domain.
func domainFor(cfg config.Config) (domain.Domain, error) {
	switch cfg.Domain {
	case "", "sign":
		return domain.SignDomain{}, nil
	case "interval":
		return domain.IntervalDomain{}, nil
	default:
		return nil, fmt.Errorf("driver: %w: %q", analysiserr.ErrUnknownDomain, cfg.Domain)
	}
}

// Analyze runs one method of class to a fixed point.
func Analyze(class opcode.Class, id opcode.ID, cfg config.Config, runID uuid.UUID) (Result, error) {
	method, ok := class.Find(id)
	if !ok {
		return Result{}, fmt.Errorf("driver: %s: %w", id, config.ErrMissingMethod)
	}
	if len(method.Code.Lines) == 0 {
		return Result{}, fmt.Errorf("driver: %s: %w", id, config.ErrMissingLineTable)
	}
	dom, err := domainFor(cfg)
	if err != nil {
		return Result{}, err
	}

	a := &analysis{
		method:     method,
		dom:        dom,
		cfg:        cfg,
		wl:         worklist.New(),
		opHit:      map[int]bool{},
		deadStore:  map[int]int{},
		resolved:   map[int]bool{},
		deadArg:    map[int]bool{},
		joinCounts: map[frame.Point]int{},
		terminals:  terminal.NewSet(),
	}
	for i := range method.Params {
		a.deadArg[i] = true
	}

	entry := frame.New(id)
	st := state.New(entry)
	for i, p := range method.Params {
		n := st.Store.Fresh(dom.FromType(p.Type == opcode.Float))
		st.Top().SetLocal(i, n)
	}
	if _, ok := a.join(st); !ok {
		return Result{}, fmt.Errorf("driver: %s: %w", id, analysiserr.ErrStackHeightMismatch)
	}

	for !a.wl.Empty() {
		if a.iterations >= effectiveMaxIterations(cfg) {
			// Iteration-budget exhaustion is a recoverable per-method
			// error (spec.md §4.8, §7): the run is not aborted, but no
			// dead-code findings are trustworthy, so they are withheld
			// and FixedPoint reports the shortfall (spec.md §6's
			// required "reached fixed point" flag).
			return Result{
				Method:     id,
				RunID:      runID,
				FixedPoint: false,
				Terminals:  a.terminals.Slice(),
				Iterations: a.iterations,
			}, nil
		}
		a.iterations++

		p, cur, ok := a.wl.Pop()
		if !ok {
			break
		}
		rec, ok := method.AtOffset(p.Offset)
		if !ok {
			return Result{}, fmt.Errorf("driver: %s: no instruction at offset %d", id, p.Offset)
		}

		outcomes, err := transfer.Step(cur, rec, method.Code, dom, cfg)
		if err != nil {
			return Result{}, fmt.Errorf("driver: %s: %w", id, err)
		}
		if len(outcomes) > 0 {
			a.opHit[rec.Offset] = true
			switch rec.Tag {
			case opcode.Load:
				a.recordLoad(rec.Index)
			case opcode.Store:
				a.recordStore(rec.Index, rec.Offset)
			}
		}
		for _, oc := range outcomes {
			if oc.Terminal != "" {
				a.terminals.Add(oc.Terminal)
				continue
			}
			if _, ok := a.join(oc.Next); !ok {
				return Result{}, fmt.Errorf("driver: %s: %w", id, analysiserr.ErrStackHeightMismatch)
			}
		}
	}

	return Result{
		Method:       id,
		RunID:        runID,
		DeadLines:    a.deadLines(),
		DeadArgs:     sortedInts(a.deadArg),
		FixedPoint:   true,
		Terminals:    a.terminals.Slice(),
		StraightLine: straightLine(method.Code),
		Iterations:   a.iterations,
	}, nil
}

func effectiveMaxIterations(cfg config.Config) int {
	if cfg.MaxIterations <= 0 {
		return config.Default().MaxIterations
	}
	return cfg.MaxIterations
}

// analysis holds the per-method mutable bookkeeping spec.md §4.7
// names, plus the widening state spec.md §9 requires for the interval
// domain. It exists only for the duration of one Analyze call.
type analysis struct {
	method opcode.Method
	dom    domain.Domain
	cfg    config.Config

	wl         *worklist.Set
	opHit      map[int]bool
	deadStore  map[int]int  // local index -> still-pending candidate offset
	resolved   map[int]bool // offsets confirmed dead: overwritten by a later store before any load
	deadArg    map[int]bool
	joinCounts map[frame.Point]int
	terminals  terminal.Set
	iterations int
}

// recordStore implements spec.md §4.7's Store bookkeeping rule with one
// correction: overwriting a still-pending candidate for index (a second
// Store to the same local before the first is ever read) does not
// silently erase that candidate, it confirms it dead — the overwritten
// value was never observed, so the store that produced it is as dead
// as one whose offset is simply absent from op_hit. Only Load, not a
// later Store, is allowed to withdraw a candidate (spec.md §8 scenario
// 5: two back-to-back stores to local 1 before any load flags the
// first store's offset dead even though the map-overwrite reading of
// §4.7's bookkeeping rule alone would lose it).
func (a *analysis) recordStore(index, offset int) {
	if prev, ok := a.deadStore[index]; ok {
		a.resolved[prev] = true
	}
	a.deadStore[index] = offset
}

func (a *analysis) recordLoad(index int) {
	delete(a.deadStore, index)
	delete(a.deadArg, index)
}

// join installs st into the worklist, applying widening once a
// program point has grown config.Config.WideningAfter times in total
// (spec.md §9; the per-point count is never reset). ok is false only on a fatal stack-height mismatch.
func (a *analysis) join(st *state.State) (grew, ok bool) {
	p := st.PC()
	prev, hadPrev := a.wl.At(p)
	var prevClone *state.State
	if hadPrev {
		prevClone = prev.Clone()
	}
	grew, ok = a.wl.Join(st)
	if !ok || !grew || !hadPrev {
		return grew, ok
	}
	a.joinCounts[p]++
	if a.joinCounts[p] < wideningThreshold(a.cfg) {
		return grew, ok
	}
	cur, _ := a.wl.At(p)
	widened := cur.Clone()
	widened.Store.Widen(prevClone.Store, a.dom)
	a.wl.Widen(p, widened)
	return grew, ok
}

func wideningThreshold(cfg config.Config) int {
	if cfg.WideningAfter <= 0 {
		return config.Default().WideningAfter
	}
	return cfg.WideningAfter
}

// deadLines is the union of spec.md §4.7's dead-offset sources —
// offsets never in op_hit, offsets named by a still-pending dead_store
// entry, and offsets confirmed dead by a later overwrite (a.resolved,
// see recordStore) — mapped through the method's line table and
// deduplicated.
func (a *analysis) deadLines() []int {
	offsets := map[int]bool{}
	for _, r := range a.method.Code.Bytecode {
		if !a.opHit[r.Offset] {
			offsets[r.Offset] = true
		}
	}
	for _, off := range a.deadStore {
		offsets[off] = true
	}
	for off := range a.resolved {
		offsets[off] = true
	}
	lines := map[int]bool{}
	for off := range offsets {
		if line, ok := a.method.Code.LineOf(off); ok {
			lines[line] = true
		}
	}
	return sortedInts(lines)
}

func sortedInts(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// straightLine reports whether code contains no branch opcode at all.
func straightLine(code opcode.Code) bool {
	for _, r := range code.Bytecode {
		switch r.Tag {
		case opcode.Ifz, opcode.If, opcode.Goto:
			return false
		}
	}
	return true
}

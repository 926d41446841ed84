// Public domain.

package model

import (
	"errors"
	"fmt"
	"strings"
)

// Block names.
const (
	Distortions      = "Distortions"
	DistortionsChip  = "DistortionsChip"
	DistortionsVisit = "DistortionsVisit"
	Positions        = "Positions"
	Model            = "Model"
	ModelChip        = "ModelChip"
	ModelVisit       = "ModelVisit"
	Fluxes           = "Fluxes"
)

// ErrUnknownBlock is returned when freezing or thawing a block name not
// present in a table.
var ErrUnknownBlock = errors.New("unknown parameter block")

type block struct {
	name          string
	start, len    int
	frozen, fixed bool
}

// ParamTable maps named parameter blocks to ranges of a flat parameter
// vector.  Ranges are assigned when blocks are added and never change.
// Frozen blocks keep their ranges but are excluded from minimization.
//
// A block name matches itself and any block whose name it prefixes, so
// thawing "Distortions" thaws both "DistortionsChip" and
// "DistortionsVisit" blocks.
type ParamTable struct {
	blocks []block
	active []bool
}

// Add appends a block of n parameters and returns its first index.  A
// fixed block is never thawed.
func (t *ParamTable) Add(name string, n int, fixed bool) int {
	start := len(t.active)
	t.blocks = append(t.blocks, block{name: name, start: start, len: n,
		frozen: true, fixed: fixed})
	t.active = append(t.active, make([]bool, n)...)
	return start
}

// Len returns the total number of parameters.
func (t *ParamTable) Len() int { return len(t.active) }

// Has reports whether any block matches name.
func (t *ParamTable) Has(name string) bool {
	for _, b := range t.blocks {
		if matches(name, b.name) {
			return true
		}
	}
	return false
}

func matches(name, block string) bool {
	return strings.HasPrefix(block, name)
}

// Active reports whether parameter i takes part in minimization.
func (t *ParamTable) Active(i int) bool { return t.active[i] }

// NActive returns the number of active parameters.
func (t *ParamTable) NActive() (n int) {
	for _, a := range t.active {
		if a {
			n++
		}
	}
	return
}

// Freeze excludes the named blocks from minimization.
func (t *ParamTable) Freeze(names ...string) error {
	return t.set(false, names)
}

// Thaw includes the named blocks in minimization.
func (t *ParamTable) Thaw(names ...string) error {
	return t.set(true, names)
}

// FreezeAll freezes every block.
func (t *ParamTable) FreezeAll() {
	for i := range t.blocks {
		t.blocks[i].frozen = true
	}
	for i := range t.active {
		t.active[i] = false
	}
}

// Select freezes everything, then thaws the blocks named by the space
// separated words of whatToFit.
func (t *ParamTable) Select(whatToFit string) error {
	t.FreezeAll()
	return t.Thaw(strings.Fields(whatToFit)...)
}

func (t *ParamTable) set(thaw bool, names []string) error {
	for _, name := range names {
		found := false
		for i := range t.blocks {
			b := &t.blocks[i]
			if !matches(name, b.name) {
				continue
			}
			found = true
			b.frozen = !thaw
			on := thaw && !b.fixed
			for k := b.start; k < b.start+b.len; k++ {
				t.active[k] = on
			}
		}
		if !found {
			return fmt.Errorf("%w %q", ErrUnknownBlock, name)
		}
	}
	return nil
}

// Derivs collects the nonzero derivatives of one residual term with
// respect to global parameters.  DY is unused by scalar terms.
type Derivs struct {
	Index  []int
	DX, DY []float64
}

// Reset empties d for reuse.
func (d *Derivs) Reset() {
	d.Index = d.Index[:0]
	d.DX = d.DX[:0]
	d.DY = d.DY[:0]
}

// Add appends one derivative pair.
func (d *Derivs) Add(i int, dx, dy float64) {
	d.Index = append(d.Index, i)
	d.DX = append(d.DX, dx)
	d.DY = append(d.DY, dy)
}

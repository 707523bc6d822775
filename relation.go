package foldgrad

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// StepRelation describes one state transition z_{i+1} = step(z_i, w_i) as an
// arithmetic constraint system over the BN254 scalar field. Implementations
// must allocate the same constraint structure on every call; per-step data
// enters through the input variables, never through matrix coefficients.
type StepRelation interface {
	StateLen() int
	InputLen() int
	// Synthesize emits the step constraints on b and returns the next state
	// as linear combinations of the allocated variables.
	Synthesize(b *Builder, state, input []Var) ([]LC, error)
}

// synthesizeStep runs one step of the relation and returns the shape, the
// assignment and the resulting state values. Public input layout:
// x = [z_i | relation publics | z_{i+1} | idx | tagPrev | dRun | tag],
// where tag is the chain tag computed inside the circuit from the four
// preceding slots and both state sections.
func synthesizeStep(rel StepRelation, cp circuitPoseidon, z, input []fr.Element, link stepLink) (*Shape, []fr.Element, []fr.Element, []fr.Element, error) {
	if len(z) != rel.StateLen() {
		return nil, nil, nil, nil, fmt.Errorf("%w: state %d, relation wants %d", ErrArityMismatch, len(z), rel.StateLen())
	}
	if len(input) != rel.InputLen() {
		return nil, nil, nil, nil, fmt.Errorf("%w: input %d, relation wants %d", ErrArityMismatch, len(input), rel.InputLen())
	}
	b := NewBuilder()
	stateVars := make([]Var, len(z))
	for i, v := range z {
		stateVars[i] = b.Public(v)
	}
	inputVars := make([]Var, len(input))
	for i, v := range input {
		inputVars[i] = b.Secret(v)
	}
	next, err := rel.Synthesize(b, stateVars, inputVars)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: %v", ErrSetup, err)
	}
	if len(next) != rel.StateLen() {
		return nil, nil, nil, nil, fmt.Errorf("%w: relation returned %d next-state values, declared %d", ErrSetup, len(next), rel.StateLen())
	}
	zNext := make([]fr.Element, len(next))
	nextVars := make([]Var, len(next))
	for i, lc := range next {
		zNext[i] = b.Eval(lc)
		nextVars[i] = b.PublicEq(lc)
	}

	var idxEl fr.Element
	idxEl.SetUint64(link.Idx)
	idxVar := b.Public(idxEl)
	tagPrevVar := b.Public(link.TagPrev)
	dRunVar := b.Public(link.DRun)
	vals := make([]LC, 0, 2*len(z)+3)
	vals = append(vals, b.V(tagPrevVar), b.V(idxVar), b.V(dRunVar))
	for _, v := range stateVars {
		vals = append(vals, b.V(v))
	}
	for _, v := range nextVars {
		vals = append(vals, b.V(v))
	}
	b.PublicEq(cp.sum(b, vals...))

	shape, w, x := b.Finalize()
	return shape, w, x, zNext, nil
}

// SumRelation folds one private gradient vector into the running aggregate:
// z_{i+1} = z_i + w_i. This is the relation the FL bridge uses.
type SumRelation struct {
	Len int
}

func (r SumRelation) StateLen() int { return r.Len }
func (r SumRelation) InputLen() int { return r.Len }

func (r SumRelation) Synthesize(b *Builder, state, input []Var) ([]LC, error) {
	out := make([]LC, len(state))
	for i := range state {
		out[i] = b.V(state[i]).Add(b.V(input[i]))
	}
	return out, nil
}

// WeightedSumRelation scales each gradient by a per-step weight carried as the
// last input element: z_{i+1} = z_i + weight · w_i. The weight is exposed as a
// public input; only the gradient stays private.
type WeightedSumRelation struct {
	Len int
}

func (r WeightedSumRelation) StateLen() int { return r.Len }
func (r WeightedSumRelation) InputLen() int { return r.Len + 1 }

func (r WeightedSumRelation) Synthesize(b *Builder, state, input []Var) ([]LC, error) {
	weight := b.PublicEq(b.V(input[len(input)-1]))
	out := make([]LC, len(state))
	for i := range state {
		scaled := b.Mul(b.V(weight), b.V(input[i]))
		out[i] = b.V(state[i]).Add(b.V(scaled))
	}
	return out, nil
}

// BoundedSumRelation is SumRelation with a range check: every gradient,
// shifted by 2^(Bits-1), must fit in Bits bits. Rejects inputs outside the
// signed fixed-point window at proving time.
type BoundedSumRelation struct {
	Len  int
	Bits int
}

func (r BoundedSumRelation) StateLen() int { return r.Len }
func (r BoundedSumRelation) InputLen() int { return r.Len }

func (r BoundedSumRelation) Synthesize(b *Builder, state, input []Var) ([]LC, error) {
	if r.Bits <= 0 || r.Bits >= SCALAR_BITS {
		return nil, fmt.Errorf("bounded sum: bits out of range: %d", r.Bits)
	}
	var shift fr.Element
	shift.SetUint64(1)
	var two fr.Element
	two.SetUint64(2)
	for i := 0; i < r.Bits-1; i++ {
		shift.Mul(&shift, &two)
	}
	out := make([]LC, len(state))
	for i := range state {
		b.ToBits(b.V(input[i]).Add(Constant(shift)), r.Bits)
		out[i] = b.V(state[i]).Add(b.V(input[i]))
	}
	return out, nil
}

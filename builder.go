package foldgrad

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Var references a variable allocated on a Builder.
type Var struct {
	id int
}

type term struct {
	v int
	c fr.Element
}

// LC is a linear combination of builder variables plus a constant. The
// constant lands on the u column when rows are laid out, which keeps the
// resulting system foldable.
type LC struct {
	terms []term
	k     fr.Element
}

func (l LC) Add(o LC) LC {
	out := LC{terms: make([]term, 0, len(l.terms)+len(o.terms)), k: l.k}
	out.terms = append(out.terms, l.terms...)
	out.terms = append(out.terms, o.terms...)
	out.k.Add(&out.k, &o.k)
	return out
}

func (l LC) Sub(o LC) LC {
	var neg fr.Element
	out := LC{terms: make([]term, 0, len(l.terms)+len(o.terms)), k: l.k}
	out.terms = append(out.terms, l.terms...)
	for _, t := range o.terms {
		neg.Neg(&t.c)
		out.terms = append(out.terms, term{v: t.v, c: neg})
	}
	out.k.Sub(&out.k, &o.k)
	return out
}

func (l LC) Scale(c fr.Element) LC {
	out := LC{terms: make([]term, len(l.terms))}
	for i, t := range l.terms {
		out.terms[i].v = t.v
		out.terms[i].c.Mul(&t.c, &c)
	}
	out.k.Mul(&l.k, &c)
	return out
}

// Constant lifts a field element into a pure-constant combination.
func Constant(c fr.Element) LC {
	return LC{k: c}
}

func ConstantUint(v uint64) LC {
	var c fr.Element
	c.SetUint64(v)
	return LC{k: c}
}

type row struct {
	a, b, c LC
}

// Builder accumulates R1CS rows while computing the assignment alongside.
// The row structure depends only on the synthesis call sequence, so two runs
// of the same relation yield identical shapes regardless of input values.
type Builder struct {
	vals []fr.Element
	pub  []bool
	rows []row
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) alloc(val fr.Element, public bool) Var {
	b.vals = append(b.vals, val)
	b.pub = append(b.pub, public)
	return Var{id: len(b.vals) - 1}
}

// Public allocates a public-input variable.
func (b *Builder) Public(val fr.Element) Var {
	return b.alloc(val, true)
}

// Secret allocates a witness variable.
func (b *Builder) Secret(val fr.Element) Var {
	return b.alloc(val, false)
}

// V lifts a variable into a linear combination.
func (b *Builder) V(v Var) LC {
	var one fr.Element
	one.SetOne()
	return LC{terms: []term{{v: v.id, c: one}}}
}

// Eval computes the current value of a combination.
func (b *Builder) Eval(l LC) fr.Element {
	acc := l.k
	var t fr.Element
	for _, tm := range l.terms {
		t.Mul(&tm.c, &b.vals[tm.v])
		acc.Add(&acc, &t)
	}
	return acc
}

// Mul emits a multiplication row and returns the product as a fresh witness
// variable.
func (b *Builder) Mul(x, y LC) Var {
	vx := b.Eval(x)
	vy := b.Eval(y)
	var vo fr.Element
	vo.Mul(&vx, &vy)
	out := b.Secret(vo)
	b.rows = append(b.rows, row{a: x, b: y, c: b.V(out)})
	return out
}

// AssertEqual emits (x − y) · 1 = 0.
func (b *Builder) AssertEqual(x, y LC) {
	var one fr.Element
	one.SetOne()
	b.rows = append(b.rows, row{a: x.Sub(y), b: Constant(one), c: LC{}})
}

// AssertBool emits v · (v − 1) = 0.
func (b *Builder) AssertBool(v Var) {
	var one fr.Element
	one.SetOne()
	b.rows = append(b.rows, row{a: b.V(v), b: b.V(v).Sub(Constant(one)), c: LC{}})
}

// Reduce allocates a fresh witness variable constrained to the value of l,
// keeping long-lived combinations from growing without bound.
func (b *Builder) Reduce(l LC) Var {
	v := b.Secret(b.Eval(l))
	b.AssertEqual(l, b.V(v))
	return v
}

// PublicEq exposes a computed combination as a public input by allocating a
// public variable constrained equal to it.
func (b *Builder) PublicEq(l LC) Var {
	p := b.Public(b.Eval(l))
	b.AssertEqual(l, b.V(p))
	return p
}

// ToBits decomposes a combination into n boolean witness variables,
// little-endian, and constrains the recomposition.
func (b *Builder) ToBits(l LC, n int) []Var {
	val := b.Eval(l)
	var bi big.Int
	val.BigInt(&bi)
	bits := make([]Var, n)
	recomp := LC{}
	var coeff fr.Element
	coeff.SetOne()
	var two fr.Element
	two.SetUint64(2)
	for i := 0; i < n; i++ {
		var bit fr.Element
		bit.SetUint64(uint64(bi.Bit(i)))
		bits[i] = b.Secret(bit)
		b.AssertBool(bits[i])
		recomp = recomp.Add(b.V(bits[i]).Scale(coeff))
		coeff.Mul(&coeff, &two)
	}
	b.AssertEqual(recomp, l)
	return bits
}

// Finalize lays out the z-vector (witness columns first, then public, then u)
// and materializes the sparse matrices plus the assignment.
func (b *Builder) Finalize() (*Shape, []fr.Element, []fr.Element) {
	colOf := make([]int, len(b.vals))
	nbWit, nbPub := 0, 0
	for _, p := range b.pub {
		if p {
			nbPub++
		} else {
			nbWit++
		}
	}
	w := make([]fr.Element, 0, nbWit)
	x := make([]fr.Element, 0, nbPub)
	iw, ix := 0, 0
	for i, p := range b.pub {
		if p {
			colOf[i] = nbWit + ix
			x = append(x, b.vals[i])
			ix++
		} else {
			colOf[i] = iw
			w = append(w, b.vals[i])
			iw++
		}
	}
	uCol := nbWit + nbPub
	conv := func(l LC) []Entry {
		out := make([]Entry, 0, len(l.terms)+1)
		for _, t := range l.terms {
			if t.c.IsZero() {
				continue
			}
			out = append(out, Entry{Col: colOf[t.v], Coeff: t.c})
		}
		if !l.k.IsZero() {
			out = append(out, Entry{Col: uCol, Coeff: l.k})
		}
		return out
	}
	shape := &Shape{
		NbWit: nbWit,
		NbPub: nbPub,
		A:     make([][]Entry, len(b.rows)),
		B:     make([][]Entry, len(b.rows)),
		C:     make([][]Entry, len(b.rows)),
	}
	for i, r := range b.rows {
		shape.A[i] = conv(r.a)
		shape.B[i] = conv(r.b)
		shape.C[i] = conv(r.c)
	}
	return shape, w, x
}

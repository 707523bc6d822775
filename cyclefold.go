package foldgrad

import (
	"fmt"
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/grumpkin"
	grumpkinfr "github.com/consensys/gnark-crypto/ecc/grumpkin/fr"
)

// The auxiliary circuit lives on Grumpkin, whose scalar field is BN254's base
// field. BN254 G1 arithmetic is therefore native here: the circuit attests
// that each commitment combination Out = P1 + r·P2 performed while folding
// primary instances was computed correctly, which keeps primary-curve scalar
// multiplication out of the primary relation.
//
// Point addition uses the complete projective formulas for a = 0 short
// Weierstrass curves (Renes-Costello), so the double-and-add loop needs no
// exceptional-case branching for the identity or equal points.

// AuxEntry and AuxShape mirror Entry/Shape over the Grumpkin scalar field.
type AuxEntry struct {
	Col   int
	Coeff grumpkinfr.Element
}

type AuxShape struct {
	NbWit int
	NbPub int
	A     [][]AuxEntry
	B     [][]AuxEntry
	C     [][]AuxEntry
}

func (s *AuxShape) NbRows() int { return len(s.A) }
func (s *AuxShape) NbCols() int { return s.NbWit + s.NbPub + 1 }

func (s *AuxShape) Z(w, x []grumpkinfr.Element, u grumpkinfr.Element) ([]grumpkinfr.Element, error) {
	if len(w) != s.NbWit || len(x) != s.NbPub {
		return nil, fmt.Errorf("%w: aux z-vector %d+%d, shape %d+%d", ErrInternal, len(w), len(x), s.NbWit, s.NbPub)
	}
	z := make([]grumpkinfr.Element, s.NbCols())
	copy(z, w)
	copy(z[s.NbWit:], x)
	z[s.NbWit+s.NbPub] = u
	return z, nil
}

func auxMulVec(m [][]AuxEntry, z []grumpkinfr.Element) []grumpkinfr.Element {
	out := make([]grumpkinfr.Element, len(m))
	var t grumpkinfr.Element
	for i, row := range m {
		for _, e := range row {
			t.Mul(&e.Coeff, &z[e.Col])
			out[i].Add(&out[i], &t)
		}
	}
	return out
}

func (s *AuxShape) IsSatStrict(w, x []grumpkinfr.Element) error {
	var one grumpkinfr.Element
	one.SetOne()
	z, err := s.Z(w, x, one)
	if err != nil {
		return err
	}
	az, bz, cz := auxMulVec(s.A, z), auxMulVec(s.B, z), auxMulVec(s.C, z)
	var l grumpkinfr.Element
	for i := range az {
		l.Mul(&az[i], &bz[i])
		if !l.Equal(&cz[i]) {
			return fmt.Errorf("%w: aux row %d", ErrConstraintUnsatisfied, i)
		}
	}
	return nil
}

func (s *AuxShape) IsSatRelaxed(w, e, x []grumpkinfr.Element, u grumpkinfr.Element) error {
	if len(e) != s.NbRows() {
		return fmt.Errorf("%w: aux error vector length %d, rows %d", ErrInternal, len(e), s.NbRows())
	}
	z, err := s.Z(w, x, u)
	if err != nil {
		return err
	}
	az, bz, cz := auxMulVec(s.A, z), auxMulVec(s.B, z), auxMulVec(s.C, z)
	var l, r grumpkinfr.Element
	for i := range az {
		l.Mul(&az[i], &bz[i])
		r.Mul(&u, &cz[i])
		r.Add(&r, &e[i])
		if !l.Equal(&r) {
			return fmt.Errorf("%w: aux relaxed row %d", ErrConstraintUnsatisfied, i)
		}
	}
	return nil
}

func (s *AuxShape) CrossTerm(z1, z2 []grumpkinfr.Element, u1, u2 grumpkinfr.Element) []grumpkinfr.Element {
	az1, bz1, cz1 := auxMulVec(s.A, z1), auxMulVec(s.B, z1), auxMulVec(s.C, z1)
	az2, bz2, cz2 := auxMulVec(s.A, z2), auxMulVec(s.B, z2), auxMulVec(s.C, z2)
	t := make([]grumpkinfr.Element, s.NbRows())
	var acc, tmp grumpkinfr.Element
	for i := range t {
		acc.Mul(&az1[i], &bz2[i])
		tmp.Mul(&az2[i], &bz1[i])
		acc.Add(&acc, &tmp)
		tmp.Mul(&u1, &cz2[i])
		acc.Sub(&acc, &tmp)
		tmp.Mul(&u2, &cz1[i])
		acc.Sub(&acc, &tmp)
		t[i] = acc
	}
	return t
}

// ---------------------- aux constraint builder ----------------------

type auxVar struct {
	id int
}

type auxTerm struct {
	v int
	c grumpkinfr.Element
}

type auxLC struct {
	terms []auxTerm
	k     grumpkinfr.Element
}

func (l auxLC) Add(o auxLC) auxLC {
	out := auxLC{terms: make([]auxTerm, 0, len(l.terms)+len(o.terms)), k: l.k}
	out.terms = append(out.terms, l.terms...)
	out.terms = append(out.terms, o.terms...)
	out.k.Add(&out.k, &o.k)
	return out
}

func (l auxLC) Sub(o auxLC) auxLC {
	var neg grumpkinfr.Element
	out := auxLC{terms: make([]auxTerm, 0, len(l.terms)+len(o.terms)), k: l.k}
	out.terms = append(out.terms, l.terms...)
	for _, t := range o.terms {
		neg.Neg(&t.c)
		out.terms = append(out.terms, auxTerm{v: t.v, c: neg})
	}
	out.k.Sub(&out.k, &o.k)
	return out
}

func (l auxLC) Scale(c grumpkinfr.Element) auxLC {
	out := auxLC{terms: make([]auxTerm, len(l.terms))}
	for i, t := range l.terms {
		out.terms[i].v = t.v
		out.terms[i].c.Mul(&t.c, &c)
	}
	out.k.Mul(&l.k, &c)
	return out
}

func auxConstUint(v uint64) auxLC {
	var c grumpkinfr.Element
	c.SetUint64(v)
	return auxLC{k: c}
}

type auxRow struct {
	a, b, c auxLC
}

type auxBuilder struct {
	vals []grumpkinfr.Element
	pub  []bool
	rows []auxRow
}

func newAuxBuilder() *auxBuilder {
	return &auxBuilder{}
}

func (b *auxBuilder) alloc(val grumpkinfr.Element, public bool) auxVar {
	b.vals = append(b.vals, val)
	b.pub = append(b.pub, public)
	return auxVar{id: len(b.vals) - 1}
}

func (b *auxBuilder) Public(val grumpkinfr.Element) auxVar { return b.alloc(val, true) }
func (b *auxBuilder) Secret(val grumpkinfr.Element) auxVar { return b.alloc(val, false) }

func (b *auxBuilder) V(v auxVar) auxLC {
	var one grumpkinfr.Element
	one.SetOne()
	return auxLC{terms: []auxTerm{{v: v.id, c: one}}}
}

func (b *auxBuilder) Eval(l auxLC) grumpkinfr.Element {
	acc := l.k
	var t grumpkinfr.Element
	for _, tm := range l.terms {
		t.Mul(&tm.c, &b.vals[tm.v])
		acc.Add(&acc, &t)
	}
	return acc
}

func (b *auxBuilder) Mul(x, y auxLC) auxVar {
	vx := b.Eval(x)
	vy := b.Eval(y)
	var vo grumpkinfr.Element
	vo.Mul(&vx, &vy)
	out := b.Secret(vo)
	b.rows = append(b.rows, auxRow{a: x, b: y, c: b.V(out)})
	return out
}

func (b *auxBuilder) AssertEqual(x, y auxLC) {
	b.rows = append(b.rows, auxRow{a: x.Sub(y), b: auxConstUint(1), c: auxLC{}})
}

func (b *auxBuilder) AssertBool(v auxVar) {
	b.rows = append(b.rows, auxRow{a: b.V(v), b: b.V(v).Sub(auxConstUint(1)), c: auxLC{}})
}

func (b *auxBuilder) ToBits(l auxLC, n int) []auxVar {
	val := b.Eval(l)
	var bi big.Int
	val.BigInt(&bi)
	bits := make([]auxVar, n)
	recomp := auxLC{}
	var coeff, two grumpkinfr.Element
	coeff.SetOne()
	two.SetUint64(2)
	for i := 0; i < n; i++ {
		var bit grumpkinfr.Element
		bit.SetUint64(uint64(bi.Bit(i)))
		bits[i] = b.Secret(bit)
		b.AssertBool(bits[i])
		recomp = recomp.Add(b.V(bits[i]).Scale(coeff))
		coeff.Mul(&coeff, &two)
	}
	b.AssertEqual(recomp, l)
	return bits
}

func (b *auxBuilder) Finalize() (*AuxShape, []grumpkinfr.Element, []grumpkinfr.Element) {
	colOf := make([]int, len(b.vals))
	nbWit, nbPub := 0, 0
	for _, p := range b.pub {
		if p {
			nbPub++
		} else {
			nbWit++
		}
	}
	w := make([]grumpkinfr.Element, 0, nbWit)
	x := make([]grumpkinfr.Element, 0, nbPub)
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
	conv := func(l auxLC) []AuxEntry {
		out := make([]AuxEntry, 0, len(l.terms)+1)
		for _, t := range l.terms {
			if t.c.IsZero() {
				continue
			}
			out = append(out, AuxEntry{Col: colOf[t.v], Coeff: t.c})
		}
		if !l.k.IsZero() {
			out = append(out, AuxEntry{Col: uCol, Coeff: l.k})
		}
		return out
	}
	shape := &AuxShape{
		NbWit: nbWit,
		NbPub: nbPub,
		A:     make([][]AuxEntry, len(b.rows)),
		B:     make([][]AuxEntry, len(b.rows)),
		C:     make([][]AuxEntry, len(b.rows)),
	}
	for i, r := range b.rows {
		shape.A[i] = conv(r.a)
		shape.B[i] = conv(r.b)
		shape.C[i] = conv(r.c)
	}
	return shape, w, x
}

// ---------------------- circuit synthesis ----------------------

// projAdd emits the complete projective addition P + Q for BN254 (a=0, b=3,
// so 3b = 9). 12 multiplication rows; everything else folds into linear
// combinations.
func projAdd(b *auxBuilder, p, q [3]auxLC) [3]auxLC {
	var b3 grumpkinfr.Element
	b3.SetUint64(9)
	var three grumpkinfr.Element
	three.SetUint64(3)

	t0 := b.V(b.Mul(p[0], q[0]))
	t1 := b.V(b.Mul(p[1], q[1]))
	t2 := b.V(b.Mul(p[2], q[2]))
	t3 := b.V(b.Mul(p[0].Add(p[1]), q[0].Add(q[1]))).Sub(t0).Sub(t1)
	t4 := b.V(b.Mul(p[1].Add(p[2]), q[1].Add(q[2]))).Sub(t1).Sub(t2)
	y3 := b.V(b.Mul(p[0].Add(p[2]), q[0].Add(q[2]))).Sub(t0).Sub(t2).Scale(b3)
	x3 := t0.Scale(three)
	t2b := t2.Scale(b3)
	z3 := t1.Add(t2b)
	t1b := t1.Sub(t2b)

	outX := b.V(b.Mul(t3, t1b)).Sub(b.V(b.Mul(t4, y3)))
	outY := b.V(b.Mul(y3, x3)).Add(b.V(b.Mul(t1b, z3)))
	outZ := b.V(b.Mul(z3, t4)).Add(b.V(b.Mul(x3, t3)))
	return [3]auxLC{outX, outY, outZ}
}

// projSelect returns bit ? a : q, one multiplication row per coordinate.
func projSelect(b *auxBuilder, bit auxVar, a, q [3]auxLC) [3]auxLC {
	var out [3]auxLC
	for i := 0; i < 3; i++ {
		d := b.Mul(b.V(bit), a[i].Sub(q[i]))
		out[i] = q[i].Add(b.V(d))
	}
	return out
}

// projCoords embeds a BN254 affine point into projective coordinates over the
// Grumpkin scalar field. The identity maps to (0,1,0).
func projCoords(p bn254.G1Affine) [3]grumpkinfr.Element {
	var out [3]grumpkinfr.Element
	if p.IsInfinity() {
		out[1].SetOne()
		return out
	}
	out[0] = grumpkinfr.Element(p.X)
	out[1] = grumpkinfr.Element(p.Y)
	out[2].SetOne()
	return out
}

// auxOpX lays out the public inputs of one attestation the way
// synthesizeAuxOp allocates them: P1 (3), P2 (3), r, Out (3). The verifier
// rebuilds this vector from the points it checks to pin an aux instance to a
// specific commitment combination.
func auxOpX(op pointFold) []grumpkinfr.Element {
	c1 := projCoords(op.P1)
	c2 := projCoords(op.P2)
	co := projCoords(op.Out)
	var rb big.Int
	op.R.BigInt(&rb)
	var rv grumpkinfr.Element
	rv.SetBigInt(&rb)
	out := make([]grumpkinfr.Element, 0, 10)
	out = append(out, c1[:]...)
	out = append(out, c2[:]...)
	out = append(out, rv)
	out = append(out, co[:]...)
	return out
}

// synthesizeAuxOp builds the circuit Out = P1 + r·P2 together with its
// assignment. Public inputs, in order: P1 (3), P2 (3), r, Out (3).
func synthesizeAuxOp(op pointFold) (*AuxShape, []grumpkinfr.Element, []grumpkinfr.Element, error) {
	b := newAuxBuilder()

	c1 := projCoords(op.P1)
	c2 := projCoords(op.P2)
	co := projCoords(op.Out)
	var rb big.Int
	op.R.BigInt(&rb)
	var rv grumpkinfr.Element
	rv.SetBigInt(&rb)

	var p1, p2 [3]auxLC
	for i := 0; i < 3; i++ {
		p1[i] = b.V(b.Public(c1[i]))
	}
	for i := 0; i < 3; i++ {
		p2[i] = b.V(b.Public(c2[i]))
	}
	rPub := b.Public(rv)
	bits := b.ToBits(b.V(rPub), SCALAR_BITS)

	// acc = r·P2 by double-and-add, MSB first, starting from the identity.
	acc := [3]auxLC{auxConstUint(0), auxConstUint(1), auxConstUint(0)}
	for i := SCALAR_BITS - 1; i >= 0; i-- {
		acc = projAdd(b, acc, acc)
		sum := projAdd(b, acc, p2)
		acc = projSelect(b, bits[i], sum, acc)
	}
	res := projAdd(b, p1, acc)

	// The claimed output is affine (or the identity); equality is projective:
	// res.X·Zo = Xo·res.Z and res.Y·Zo = Yo·res.Z.
	xo := b.V(b.Public(co[0]))
	yo := b.V(b.Public(co[1]))
	zo := b.V(b.Public(co[2]))
	b.AssertEqual(b.V(b.Mul(res[0], zo)), b.V(b.Mul(xo, res[2])))
	b.AssertEqual(b.V(b.Mul(res[1], zo)), b.V(b.Mul(yo, res[2])))

	shape, w, x := b.Finalize()
	return shape, w, x, nil
}

// ---------------------- aux instances and folding ----------------------

// AuxInstance is the Grumpkin-side counterpart of Instance.
type AuxInstance struct {
	CmW grumpkin.G1Affine
	CmE grumpkin.G1Affine
	U   grumpkinfr.Element
	X   []grumpkinfr.Element
}

type AuxWitness struct {
	W []grumpkinfr.Element
	E []grumpkinfr.Element
}

func NewStrictAuxInstance(cmW grumpkin.G1Affine, x []grumpkinfr.Element) AuxInstance {
	var one grumpkinfr.Element
	one.SetOne()
	return AuxInstance{CmW: cmW, U: one, X: append([]grumpkinfr.Element(nil), x...)}
}

func ZeroAuxPair(shape *AuxShape) (AuxInstance, AuxWitness) {
	inst := AuxInstance{X: make([]grumpkinfr.Element, shape.NbPub)}
	wit := AuxWitness{
		W: make([]grumpkinfr.Element, shape.NbWit),
		E: make([]grumpkinfr.Element, shape.NbRows()),
	}
	return inst, wit
}

func (u *AuxInstance) Digest(h Hasher) fr.Element {
	vals := make([]fr.Element, 0, len(u.X)+3)
	vals = append(vals, h.HashG1Grumpkin(u.CmW), h.HashG1Grumpkin(u.CmE), h.HashScalarGrumpkin(u.U))
	for _, x := range u.X {
		vals = append(vals, h.HashScalarGrumpkin(x))
	}
	return h.Sum(vals...)
}

func (t *Transcript) AbsorbAuxInstance(u *AuxInstance) {
	t.AbsorbPointGrumpkin(u.CmW)
	t.AbsorbPointGrumpkin(u.CmE)
	t.AbsorbScalarGrumpkin(u.U)
	for _, x := range u.X {
		t.AbsorbScalarGrumpkin(x)
	}
}

// foldAuxStep folds a strict aux incoming pair into the aux running pair.
// Same algebra as foldStep, one curve down. Returns the cross-term commitment
// alongside the folded pair so the final fold can be replayed in verification.
func foldAuxStep(shape *AuxShape, pk *PedersenKeyGrumpkin, tr *Transcript,
	running AuxInstance, runningWit AuxWitness,
	incoming AuxInstance, incomingWit AuxWitness) (AuxInstance, AuxWitness, grumpkin.G1Affine, error) {

	z1, err := shape.Z(runningWit.W, running.X, running.U)
	if err != nil {
		return AuxInstance{}, AuxWitness{}, grumpkin.G1Affine{}, err
	}
	z2, err := shape.Z(incomingWit.W, incoming.X, incoming.U)
	if err != nil {
		return AuxInstance{}, AuxWitness{}, grumpkin.G1Affine{}, err
	}
	t := shape.CrossTerm(z1, z2, running.U, incoming.U)
	cmT, err := pk.Commit(t)
	if err != nil {
		return AuxInstance{}, AuxWitness{}, grumpkin.G1Affine{}, fmt.Errorf("%w: commit aux cross term: %v", ErrInternal, err)
	}

	tr.AbsorbAuxInstance(&running)
	tr.AbsorbAuxInstance(&incoming)
	tr.AbsorbPointGrumpkin(cmT)
	r := tr.ChallengeGrumpkin()

	folded := AuxInstance{
		CmW: FoldPointsGrumpkin(running.CmW, incoming.CmW, r),
		CmE: FoldPointsGrumpkin(running.CmE, cmT, r),
		X:   make([]grumpkinfr.Element, len(running.X)),
	}
	var tmp grumpkinfr.Element
	folded.U.Mul(&r, &incoming.U)
	folded.U.Add(&folded.U, &running.U)
	for i := range folded.X {
		tmp.Mul(&r, &incoming.X[i])
		folded.X[i].Add(&running.X[i], &tmp)
	}

	foldedWit := AuxWitness{
		W: make([]grumpkinfr.Element, len(runningWit.W)),
		E: make([]grumpkinfr.Element, len(runningWit.E)),
	}
	for i := range foldedWit.W {
		tmp.Mul(&r, &incomingWit.W[i])
		foldedWit.W[i].Add(&runningWit.W[i], &tmp)
	}
	for i := range foldedWit.E {
		tmp.Mul(&r, &t[i])
		foldedWit.E[i].Add(&runningWit.E[i], &tmp)
	}
	return folded, foldedWit, cmT, nil
}

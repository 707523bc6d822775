package foldgrad

import (
	"math/big"
	"testing"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

func randomG1(t *testing.T) bn254.G1Affine {
	t.Helper()
	var s fr.Element
	if _, err := s.SetRandom(); err != nil {
		t.Fatal(err)
	}
	var b big.Int
	var p bn254.G1Affine
	p.ScalarMultiplicationBase(s.BigInt(&b))
	return p
}

func foldOp(t *testing.T, p1, p2 bn254.G1Affine, r fr.Element) pointFold {
	t.Helper()
	return pointFold{P1: p1, P2: p2, Out: FoldPoints(p1, p2, r), R: r}
}

func TestAuxCircuitAttestsPointFold(t *testing.T) {
	p1 := randomG1(t)
	p2 := randomG1(t)
	var r fr.Element
	if _, err := r.SetRandom(); err != nil {
		t.Fatal(err)
	}

	shape, w, x, err := synthesizeAuxOp(foldOp(t, p1, p2, r))
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if err := shape.IsSatStrict(w, x); err != nil {
		t.Fatalf("valid point fold rejected: %v", err)
	}
}

func TestAuxCircuitRejectsWrongOutput(t *testing.T) {
	p1 := randomG1(t)
	p2 := randomG1(t)
	var r fr.Element
	r.SetUint64(7)

	op := foldOp(t, p1, p2, r)
	op.Out = randomG1(t)
	shape, w, x, err := synthesizeAuxOp(op)
	if err != nil {
		return
	}
	if err := shape.IsSatStrict(w, x); err == nil {
		t.Fatal("wrong claimed output accepted")
	}
}

func TestAuxCircuitIdentityOperands(t *testing.T) {
	// fresh sessions fold from identity commitments, so the circuit must
	// handle the point at infinity on either operand
	var inf bn254.G1Affine
	p := randomG1(t)
	var r fr.Element
	r.SetUint64(3)

	for _, op := range []pointFold{
		foldOp(t, inf, p, r),
		foldOp(t, p, inf, r),
		foldOp(t, inf, inf, r),
	} {
		shape, w, x, err := synthesizeAuxOp(op)
		if err != nil {
			t.Fatalf("synthesize: %v", err)
		}
		if err := shape.IsSatStrict(w, x); err != nil {
			t.Fatalf("identity operand rejected: %v", err)
		}
	}
}

func TestAuxShapeStableAcrossOps(t *testing.T) {
	var r1, r2 fr.Element
	r1.SetUint64(1)
	r2.SetUint64(1 << 40)
	s1, _, _, err := synthesizeAuxOp(foldOp(t, randomG1(t), randomG1(t), r1))
	if err != nil {
		t.Fatal(err)
	}
	s2, _, _, err := synthesizeAuxOp(foldOp(t, randomG1(t), randomG1(t), r2))
	if err != nil {
		t.Fatal(err)
	}
	if s1.NbWit != s2.NbWit || s1.NbPub != s2.NbPub || s1.NbRows() != s2.NbRows() {
		t.Fatalf("aux shape depends on the operands: %d/%d/%d vs %d/%d/%d",
			s1.NbWit, s1.NbPub, s1.NbRows(), s2.NbWit, s2.NbPub, s2.NbRows())
	}
}

func TestAuxFoldPreservesRelaxedSatisfaction(t *testing.T) {
	rel := SumRelation{Len: 1}
	pp, _, err := Preprocess(rel, DefaultHashConfig())
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}

	running, runningWit := ZeroAuxPair(pp.AuxShape)
	tr := NewTranscript(pp.H, pp.PPHashFr())

	for i := 0; i < 3; i++ {
		var r fr.Element
		r.SetUint64(uint64(11 + i))
		shape, w, x, err := synthesizeAuxOp(foldOp(t, randomG1(t), randomG1(t), r))
		if err != nil {
			t.Fatal(err)
		}
		cm, err := pp.PedersenAux.Commit(w)
		if err != nil {
			t.Fatal(err)
		}
		incoming := NewStrictAuxInstance(cm, x)
		running, runningWit, _, err = foldAuxStep(shape, &pp.PedersenAux, tr, running, runningWit, incoming, AuxWitness{W: w})
		if err != nil {
			t.Fatalf("aux fold %d: %v", i, err)
		}
		if err := shape.IsSatRelaxed(runningWit.W, runningWit.E, running.X, running.U); err != nil {
			t.Fatalf("aux running pair unsatisfied after fold %d: %v", i, err)
		}
	}
}

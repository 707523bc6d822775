package foldgrad

import (
	"bytes"
	"errors"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	grumpkinfr "github.com/consensys/gnark-crypto/ecc/grumpkin/fr"
)

// Folding 0.5, -0.3, 0.7, 0.2, -0.1 must aggregate to exactly 1.0 in fixed
// point, and the resulting proof must verify.
func TestCompleteness(t *testing.T) {
	rel := SumRelation{Len: 1}
	pp, vp, err := Preprocess(rel, DefaultHashConfig())
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	z0, err := EncodeVector([]float64{0})
	if err != nil {
		t.Fatal(err)
	}
	acc, err := Init(pp, rel, z0)
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range []float64{0.5, -0.3, 0.7, 0.2, -0.1} {
		in, err := EncodeVector([]float64{g})
		if err != nil {
			t.Fatal(err)
		}
		if err := acc.ProveStep(in); err != nil {
			t.Fatalf("fold %v: %v", g, err)
		}
	}
	state, err := DecodeVector(acc.State())
	if err != nil {
		t.Fatal(err)
	}
	if state[0] != 1.0 {
		t.Fatalf("aggregate = %v, want 1.0", state[0])
	}
	if acc.NumSteps() != 5 {
		t.Fatalf("steps = %d", acc.NumSteps())
	}

	p, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(vp, p); err != nil {
		t.Fatalf("honest proof rejected: %v", err)
	}
}

func TestCounterMonotonic(t *testing.T) {
	_, _, acc := foldSome(t, SumRelation{Len: 1}, []int64{0}, nil)
	for i := uint64(1); i <= 4; i++ {
		if err := acc.ProveStep(elems(int64(i))); err != nil {
			t.Fatal(err)
		}
		if acc.NumSteps() != i {
			t.Fatalf("after %d steps counter reads %d", i, acc.NumSteps())
		}
	}
}

func TestExtractionIdempotent(t *testing.T) {
	_, vp, acc := foldSome(t, SumRelation{Len: 2}, []int64{0, 0}, [][]int64{{1, 1}, {2, 2}})
	p1, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	p2, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	b1, err := p1.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	b2, err := p2.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatal("extraction without new steps changed the proof")
	}

	// the session stays usable after extraction
	if err := acc.ProveStep(elems(3, 3)); err != nil {
		t.Fatalf("step after extraction: %v", err)
	}
	p3, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(vp, p3); err != nil {
		t.Fatalf("proof after extraction rejected: %v", err)
	}
	if p3.I != p1.I+1 {
		t.Fatalf("counter %d after one more step on %d", p3.I, p1.I)
	}
}

func TestDeterministicProofs(t *testing.T) {
	steps := [][]int64{{4, -2}, {1, 9}, {0, 3}}
	_, _, acc1 := foldSome(t, SumRelation{Len: 2}, []int64{1, 1}, steps)
	_, _, acc2 := foldSome(t, SumRelation{Len: 2}, []int64{1, 1}, steps)
	p1, err := acc1.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	p2, err := acc2.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	b1, _ := p1.Bytes()
	b2, _ := p2.Bytes()
	if !bytes.Equal(b1, b2) {
		t.Fatal("identical sessions produced different proofs")
	}
}

// Reordering the same gradients reaches the same aggregate but must yield a
// different proof, and both proofs must verify.
func TestOrderSensitivity(t *testing.T) {
	_, vp, acc1 := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{5}, {7}, {-2}})
	_, _, acc2 := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{-2}, {5}, {7}})
	p1, err := acc1.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	p2, err := acc2.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	if !p1.Zi[0].Equal(&p2.Zi[0]) {
		t.Fatal("reordering a sum changed the aggregate")
	}
	if p1.Digest.Equal(&p2.Digest) {
		t.Fatal("reordered folds share a binding digest")
	}
	if err := Verify(vp, p1); err != nil {
		t.Fatal(err)
	}
	if err := Verify(vp, p2); err != nil {
		t.Fatal(err)
	}
}

func TestTamperedProofRejected(t *testing.T) {
	tamper := []struct {
		name string
		mod  func(p *IVCProof)
	}{
		{"claimed state", func(p *IVCProof) { p.Zi[0].SetUint64(1 << 30) }},
		{"step counter", func(p *IVCProof) { p.I++ }},
		{"running scalar", func(p *IVCProof) {
			var one fr.Element
			one.SetOne()
			p.Running.U.Add(&p.Running.U, &one)
		}},
		{"running witness", func(p *IVCProof) {
			var one fr.Element
			one.SetOne()
			p.RunningWit.W[0].Add(&p.RunningWit.W[0], &one)
		}},
		{"incoming public", func(p *IVCProof) {
			var one fr.Element
			one.SetOne()
			p.Incoming.X[0].Add(&p.Incoming.X[0], &one)
		}},
		{"transcript state", func(p *IVCProof) {
			var one fr.Element
			one.SetOne()
			p.TrState.Add(&p.TrState, &one)
		}},
		{"aux witness", func(p *IVCProof) {
			var one grumpkinfr.Element
			one.SetOne()
			p.AuxRunningWit.W[0].Add(&p.AuxRunningWit.W[0], &one)
		}},
	}
	for _, tc := range tamper {
		t.Run(tc.name, func(t *testing.T) {
			_, vp, acc := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{3}, {8}})
			p, err := acc.IVCProof()
			if err != nil {
				t.Fatal(err)
			}
			tc.mod(p)
			if err := Verify(vp, p); !errors.Is(err, ErrInvalidProof) {
				t.Fatalf("tampered proof: err = %v", err)
			}
		})
	}
}

func TestParameterBinding(t *testing.T) {
	_, _, acc := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{3}})
	p, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	otherCfg := DefaultHashConfig()
	otherCfg.Seed = "FOLDGRAD_POSEIDON2_ALT_SEED"
	_, vpOther, err := Preprocess(SumRelation{Len: 1}, otherCfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := Verify(vpOther, p); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("proof accepted under foreign parameters: %v", err)
	}
}

func TestInitRejectsArityMismatch(t *testing.T) {
	rel := SumRelation{Len: 2}
	pp, _, err := Preprocess(rel, DefaultHashConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Init(pp, rel, elems(0)); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("short z0: err = %v", err)
	}
	if _, err := Init(pp, SumRelation{Len: 3}, elems(0, 0, 0)); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("foreign relation: err = %v", err)
	}
}

func TestProveStepRejectsWrongInputLen(t *testing.T) {
	_, _, acc := foldSome(t, SumRelation{Len: 2}, []int64{0, 0}, nil)
	if err := acc.ProveStep(elems(1)); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("short input: err = %v", err)
	}
}

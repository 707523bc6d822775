package foldgrad

import (
	"errors"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

func TestSingleStepProofVerifies(t *testing.T) {
	_, vp, acc := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{7}})
	p, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	if p.Prev != nil {
		t.Fatal("single-step proof carries a fold trace")
	}
	if err := Verify(vp, p); err != nil {
		t.Fatalf("single-step proof rejected: %v", err)
	}
}

// A proof claiming a million folded steps while presenting only identity
// accumulators and one freshly synthesized strict step must not verify, even
// when every public slot and the binding digest are computed consistently.
func TestForgedStepCountRejected(t *testing.T) {
	rel := SumRelation{Len: 1}
	pp, vp, err := Preprocess(rel, DefaultHashConfig())
	if err != nil {
		t.Fatal(err)
	}
	const claimed = 1_000_000

	running, runningWit := ZeroRelaxedPair(pp.StepShape)
	auxRunning, auxRunningWit := ZeroAuxPair(pp.AuxShape)

	// Synthesize a perfectly valid step 41 + 1 = 42 with chain slots crafted
	// for the claimed counter and the identity accumulator.
	var fakeTag fr.Element
	fakeTag.SetUint64(0xDEAD)
	link := stepLink{Idx: claimed, TagPrev: fakeTag, DRun: running.Digest(pp.H)}
	shape, w, x, zNext, err := synthesizeStep(rel, pp.cp, elems(41), elems(1), link)
	if err != nil {
		t.Fatal(err)
	}
	if err := shape.IsSatStrict(w, x); err != nil {
		t.Fatal(err)
	}
	cmW, err := pp.Pedersen.Commit(w)
	if err != nil {
		t.Fatal(err)
	}

	var zero fr.Element
	p := &IVCProof{
		I:             claimed,
		Z0:            elems(0),
		Zi:            zNext,
		Running:       running,
		RunningWit:    runningWit,
		Incoming:      NewStrictInstance(cmW, x),
		IncomingWit:   Witness{W: w},
		AuxRunning:    auxRunning,
		AuxRunningWit: auxRunningWit,
		PPHash:        pp.PPHash(),
		TrState:       pp.H.Compress(zero, pp.PPHashFr()),
	}
	p.Digest = p.bindingDigest(pp.H)

	if err := Verify(vp, p); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("forged step count: err = %v", err)
	}
}

// A two-step forgery that fabricates the fold trace instead of running the
// transcript must fail the challenge replay: the recorded cross term feeds
// the challenge, so the fabricated fold never lands on the claimed
// accumulator.
func TestFabricatedFoldTraceRejected(t *testing.T) {
	_, vp, acc := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{3}, {8}})
	p, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	forged := *p
	forged.Prev = cloneFoldTrace(p.Prev)
	var one fr.Element
	one.SetOne()
	forged.Prev.PrevRunning.U.Add(&forged.Prev.PrevRunning.U, &one)
	if err := Verify(vp, &forged); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("fabricated pre-fold accumulator: err = %v", err)
	}
}

func TestFoldTraceTamperRejected(t *testing.T) {
	tamper := []struct {
		name string
		mod  func(p *IVCProof)
	}{
		{"cross term", func(p *IVCProof) {
			var one fr.Element
			one.SetOne()
			p.Prev.CmT = FoldPoints(p.Prev.CmT, p.Prev.PrevIncoming.CmW, one)
		}},
		{"transcript origin", func(p *IVCProof) {
			var one fr.Element
			one.SetOne()
			p.Prev.TrBefore.Add(&p.Prev.TrBefore, &one)
		}},
		{"folded step public", func(p *IVCProof) {
			var one fr.Element
			one.SetOne()
			p.Prev.PrevIncoming.X[0].Add(&p.Prev.PrevIncoming.X[0], &one)
		}},
		{"auxiliary attestation", func(p *IVCProof) {
			p.Prev.AuxSteps[0], p.Prev.AuxSteps[1] = p.Prev.AuxSteps[1], p.Prev.AuxSteps[0]
		}},
		{"missing trace", func(p *IVCProof) {
			p.Prev = nil
		}},
	}
	for _, tc := range tamper {
		t.Run(tc.name, func(t *testing.T) {
			_, vp, acc := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{3}, {8}, {2}})
			p, err := acc.IVCProof()
			if err != nil {
				t.Fatal(err)
			}
			tc.mod(p)
			if err := Verify(vp, p); !errors.Is(err, ErrInvalidProof) {
				t.Fatalf("tampered fold trace: err = %v", err)
			}
		})
	}
}

// The chain slots of the latest step must agree with the proof they ride in.
func TestChainSlotTamperRejected(t *testing.T) {
	_, vp, acc := foldSome(t, SumRelation{Len: 1}, []int64{0}, [][]int64{{3}, {8}})
	p, err := acc.IVCProof()
	if err != nil {
		t.Fatal(err)
	}
	n := len(p.Incoming.X)
	var one fr.Element
	one.SetOne()
	p.Incoming.X[n-2].Add(&p.Incoming.X[n-2], &one)
	p.Digest = p.bindingDigest(vp.H)
	if err := Verify(vp, p); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("tampered running-digest slot: err = %v", err)
	}
}

package foldgrad

import (
	"testing"
)

// buildStrictPair synthesizes one step and commits it into a strict pair.
func buildStrictPair(t *testing.T, pp *ProverParams, rel StepRelation, z, input []int64) (Instance, Witness) {
	t.Helper()
	shape, w, x, _, err := synthesizeStep(rel, pp.cp, elems(z...), elems(input...), testLink)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if got, want := shape.Digest(), pp.StepShape.Digest(); got != want {
		t.Fatal("synthesized shape diverges from preprocessed shape")
	}
	cm, err := pp.Pedersen.Commit(w)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return NewStrictInstance(cm, x), Witness{W: w}
}

func TestFoldPreservesRelaxedSatisfaction(t *testing.T) {
	rel := SumRelation{Len: 2}
	pp, _, err := Preprocess(rel, DefaultHashConfig())
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	shape := pp.StepShape

	running, runningWit := ZeroRelaxedPair(shape)
	tr := NewTranscript(pp.H, pp.PPHashFr())

	inc1, incWit1 := buildStrictPair(t, pp, rel, []int64{0, 0}, []int64{3, -1})
	folded, foldedWit, _, _, err := foldStep(shape, &pp.Pedersen, tr, running, runningWit, inc1, incWit1)
	if err != nil {
		t.Fatalf("fold 1: %v", err)
	}
	if err := shape.IsSatRelaxed(foldedWit.W, foldedWit.E, folded.X, folded.U); err != nil {
		t.Fatalf("folded pair unsatisfied after first fold: %v", err)
	}

	inc2, incWit2 := buildStrictPair(t, pp, rel, []int64{3, -1}, []int64{7, 5})
	folded2, foldedWit2, cmT, ops2, err := foldStep(shape, &pp.Pedersen, tr, folded, foldedWit, inc2, incWit2)
	if err != nil {
		t.Fatalf("fold 2: %v", err)
	}
	if err := shape.IsSatRelaxed(foldedWit2.W, foldedWit2.E, folded2.X, folded2.U); err != nil {
		t.Fatalf("folded pair unsatisfied after second fold: %v", err)
	}

	// commitments must open to the folded witnesses
	cw, err := pp.Pedersen.Commit(foldedWit2.W)
	if err != nil {
		t.Fatal(err)
	}
	if !cw.Equal(&folded2.CmW) {
		t.Fatal("folded witness commitment does not open")
	}
	ce, err := pp.Pedersen.Commit(foldedWit2.E)
	if err != nil {
		t.Fatal(err)
	}
	if !ce.Equal(&folded2.CmE) {
		t.Fatal("folded error commitment does not open")
	}

	// the recorded point operations match the folded instance
	if !ops2[0].Out.Equal(&folded2.CmW) || !ops2[1].Out.Equal(&folded2.CmE) {
		t.Fatal("point fold record disagrees with folded instance")
	}
	if !ops2[1].P2.Equal(&cmT) {
		t.Fatal("second point fold must combine the cross-term commitment")
	}
}

func TestFoldRejectsNonStrictIncoming(t *testing.T) {
	rel := SumRelation{Len: 1}
	pp, _, err := Preprocess(rel, DefaultHashConfig())
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	running, runningWit := ZeroRelaxedPair(pp.StepShape)
	inc, incWit := buildStrictPair(t, pp, rel, []int64{0}, []int64{5})
	inc.U.SetUint64(2)
	tr := NewTranscript(pp.H, pp.PPHashFr())
	if _, _, _, _, err := foldStep(pp.StepShape, &pp.Pedersen, tr, running, runningWit, inc, incWit); err == nil {
		t.Fatal("non-strict incoming instance folded")
	}
}

func TestFoldChallengeDependsOnInstances(t *testing.T) {
	rel := SumRelation{Len: 1}
	pp, _, err := Preprocess(rel, DefaultHashConfig())
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	shape := pp.StepShape

	running, runningWit := ZeroRelaxedPair(shape)
	incA, incWitA := buildStrictPair(t, pp, rel, []int64{0}, []int64{5})
	incB, incWitB := buildStrictPair(t, pp, rel, []int64{0}, []int64{6})

	trA := NewTranscript(pp.H, pp.PPHashFr())
	foldedA, _, _, _, err := foldStep(shape, &pp.Pedersen, trA, running, runningWit, incA, incWitA)
	if err != nil {
		t.Fatal(err)
	}
	trB := NewTranscript(pp.H, pp.PPHashFr())
	foldedB, _, _, _, err := foldStep(shape, &pp.Pedersen, trB, running, runningWit, incB, incWitB)
	if err != nil {
		t.Fatal(err)
	}
	if foldedA.U.Equal(&foldedB.U) {
		t.Fatal("different incoming instances produced the same challenge")
	}
}

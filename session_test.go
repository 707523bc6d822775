package foldgrad

import (
	"bytes"
	"math"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestSessionAggregatesFloats(t *testing.T) {
	s, err := NewSession(SumRelation{Len: 1}, 0)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	for _, g := range []float64{0.5, -0.3, 0.7, 0.2, -0.1} {
		if _, err := s.ProveStep(g); err != nil {
			t.Fatalf("fold %v: %v", g, err)
		}
	}
	state, err := s.State()
	if err != nil {
		t.Fatal(err)
	}
	if state[0] != 1.0 {
		t.Fatalf("aggregate = %v, want 1.0", state[0])
	}

	proof, err := s.FinalProof()
	if err != nil {
		t.Fatal(err)
	}
	if !s.VerifyProofBytes(proof) {
		t.Fatal("own proof rejected")
	}
}

func TestSessionProveBatch(t *testing.T) {
	s, err := NewSession(SumRelation{Len: 2}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	state, err := s.ProveBatch([][]float64{
		{0.25, 1},
		{0.25, -2},
		{0.5, 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if state[0] != 1.0 || state[1] != -0.5 {
		t.Fatalf("state = %v", state)
	}
	if s.NumSteps() != 3 {
		t.Fatalf("steps = %d", s.NumSteps())
	}
}

func TestSessionRejectsBadGradient(t *testing.T) {
	s, err := NewSession(SumRelation{Len: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ProveStep(math.NaN()); err == nil {
		t.Fatal("NaN gradient accepted")
	}
	// the failed encode must not have advanced the chain
	if s.NumSteps() != 0 {
		t.Fatalf("steps = %d after rejected input", s.NumSteps())
	}
}

func TestVerifyProofBytesRejectsGarbage(t *testing.T) {
	s, err := NewSession(SumRelation{Len: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.VerifyProofBytes([]byte("not a proof")) {
		t.Fatal("garbage bytes verified")
	}
	if s.VerifyProofBytes(nil) {
		t.Fatal("empty bytes verified")
	}
}

func TestVerifyProofBytesRejectsCorruption(t *testing.T) {
	s, err := NewSession(SumRelation{Len: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ProveStep(0.5); err != nil {
		t.Fatal(err)
	}
	proof, err := s.FinalProof()
	if err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte(nil), proof...)
	corrupt[len(corrupt)-1] ^= 1
	if s.VerifyProofBytes(corrupt) {
		t.Fatal("corrupted proof verified")
	}
}

func TestSessionsShareParams(t *testing.T) {
	s1, err := NewSession(SumRelation{Len: 4}, 0, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := NewSession(SumRelation{Len: 4}, 1, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s1.Params() != s2.Params() {
		t.Fatal("same relation shape did not reuse preprocessed parameters")
	}
	s3, err := NewSession(SumRelation{Len: 3}, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s1.Params() == s3.Params() {
		t.Fatal("different relation shapes share parameters")
	}
}

// Two relations of the same Go type but different configuration must each
// get their own parameters: a 24-bit and a 32-bit bounded sum generate
// different constraint systems.
func TestSessionsDistinguishRelationConfig(t *testing.T) {
	s24, err := NewSession(BoundedSumRelation{Len: 1, Bits: 24}, 0)
	if err != nil {
		t.Fatal(err)
	}
	s32, err := NewSession(BoundedSumRelation{Len: 1, Bits: 32}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s24.Params() == s32.Params() {
		t.Fatal("different range widths share parameters")
	}
	for _, s := range []*Session{s24, s32} {
		if _, err := s.ProveStep(0.5); err != nil {
			t.Fatalf("fold: %v", err)
		}
		proof, err := s.FinalProof()
		if err != nil {
			t.Fatal(err)
		}
		if !s.VerifyProofBytes(proof) {
			t.Fatal("own proof rejected")
		}
	}
}

// A gradient outside the range window fails at proving time; the session
// must stay exactly where it was and keep accepting valid steps.
func TestRejectedStepLeavesSessionUsable(t *testing.T) {
	s, err := NewSession(BoundedSumRelation{Len: 1, Bits: 24}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ProveStep(0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ProveStep(100.0); err == nil {
		t.Fatal("out-of-range gradient accepted")
	}
	if s.NumSteps() != 1 {
		t.Fatalf("steps = %d after rejected gradient", s.NumSteps())
	}
	state, err := s.State()
	if err != nil {
		t.Fatal(err)
	}
	if state[0] != 0.5 {
		t.Fatalf("state = %v after rejected gradient", state[0])
	}
	if _, err := s.ProveStep(0.25); err != nil {
		t.Fatalf("valid step after rejection: %v", err)
	}
	proof, err := s.FinalProof()
	if err != nil {
		t.Fatal(err)
	}
	if !s.VerifyProofBytes(proof) {
		t.Fatal("proof after rejected step did not verify")
	}
}

// Independent sessions over shared parameters run concurrently; identical
// input sequences must still produce identical proofs.
func TestParallelSessions(t *testing.T) {
	const n = 4
	steps := [][]float64{{0.5, -0.25}, {0.125, 0.5}, {-0.375, 0.25}}
	proofs := make([][]byte, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			s, err := NewSession(SumRelation{Len: 2}, 0, 0)
			if err != nil {
				return err
			}
			if _, err := s.ProveBatch(steps); err != nil {
				return err
			}
			proofs[i], err = s.FinalProof()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	for i := 1; i < n; i++ {
		if !bytes.Equal(proofs[0], proofs[i]) {
			t.Fatalf("session %d diverged", i)
		}
	}

	s, err := NewSession(SumRelation{Len: 2}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range proofs {
		if !s.VerifyProofBytes(proofs[i]) {
			t.Fatalf("proof %d rejected", i)
		}
	}
}

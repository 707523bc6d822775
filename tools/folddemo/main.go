// Command folddemo folds randomly drawn gradients into proof-carrying
// aggregation sessions, verifies the resulting proofs and optionally wraps
// one into a succinct Groth16 proof.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/foldgrad/foldgrad"
	"github.com/foldgrad/foldgrad/circuits/compress"
)

func main() {
	steps := flag.Int("steps", 64, "gradients to fold per session")
	dim := flag.Int("dim", 8, "gradient dimension")
	sessions := flag.Int("sessions", 4, "parallel sessions")
	wrap := flag.Bool("wrap", false, "wrap one proof into a succinct groth16 proof")
	seed := flag.Int64("seed", 1, "rng seed")
	flag.Parse()

	rel := foldgrad.SumRelation{Len: *dim}
	bar := progressbar.Default(int64(*sessions**steps), "folding")

	proofs := make([][]byte, *sessions)
	var verifier *foldgrad.Session

	var g errgroup.Group
	for si := 0; si < *sessions; si++ {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(*seed + int64(si)))
			s, err := foldgrad.NewSession(rel, make([]float64, *dim)...)
			if err != nil {
				return err
			}
			if si == 0 {
				verifier = s
			}
			grad := make([]float64, *dim)
			for i := 0; i < *steps; i++ {
				for j := range grad {
					grad[j] = rng.Float64()*2 - 1
				}
				if _, err := s.ProveStep(grad...); err != nil {
					return fmt.Errorf("session %d step %d: %w", si, i, err)
				}
				bar.Add(1)
			}
			proofs[si], err = s.FinalProof()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalln(err)
	}

	for si, b := range proofs {
		if !verifier.VerifyProofBytes(b) {
			log.Fatalln("session", si, "produced an invalid proof")
		}
	}
	log.Println("verified", *sessions, "proofs of", *steps, "folded gradients each,",
		len(proofs[0]), "bytes per proof")

	if *wrap {
		p, err := foldgrad.ParseProof(proofs[0])
		if err != nil {
			log.Fatalln(err)
		}
		vp := verifier.Params()
		log.Println("compiling wrapping circuit, this takes a while")
		keys, err := compress.Setup(vp)
		if err != nil {
			log.Fatalln(err)
		}
		sp, err := compress.Prove(vp, keys, p)
		if err != nil {
			log.Fatalln(err)
		}
		if err := compress.VerifySuccinct(vp, keys, sp); err != nil {
			log.Fatalln(err)
		}
		log.Println("succinct proof verified,", len(sp.Proof), "bytes")
	}
}

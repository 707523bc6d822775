package hasher

import (
	"fmt"
	"log"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	frbn254 "github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
)

// This test suite cross-checks the circuit implementation against the native
// Poseidon2 implementation (gnark-crypto) for permutation and hash helpers.

type poseidon2PermCircuit struct {
	Input  []frontend.Variable
	Output []frontend.Variable `gnark:",public"`
}

func (c *poseidon2PermCircuit) Define(api frontend.API) error {
	perm, err := NewPoseidon2FromParameters(api)

	if err != nil {
		return fmt.Errorf("new poseidon2 perm: %w", err)
	}
	if err := perm.Permutation(c.Input); err != nil {
		return fmt.Errorf("permute: %w", err)
	}
	for i := 0; i < len(c.Input); i++ {
		api.AssertIsEqual(c.Output[i], c.Input[i])
	}
	return nil
}

// Test: Poseidon2 permutation circuit vs native implementation

func TestPoseidon2Permutation_MatchesNative(t *testing.T) {
	assert := test.NewAssert(t)

	// Native Poseidon2 permutation
	nativePerm := GetPermutation()

	// 8 iterations
	for it := 0; it < 8; it++ {
		var in, out [WIDTH]frbn254.Element
		for i := 0; i < WIDTH; i++ {
			in[i].SetRandom()
		}
		copy(out[:], in[:])

		// Native permutation
		if err := nativePerm.Permutation(out[:]); err != nil {
			t.Fatalf("native permutation failed: %v", err)
		}

		// Circuit permutation
		var circuit poseidon2PermCircuit
		var validWitness poseidon2PermCircuit

		circuit.Input = make([]frontend.Variable, WIDTH)
		circuit.Output = make([]frontend.Variable, WIDTH)

		validWitness.Input = make([]frontend.Variable, WIDTH)
		validWitness.Output = make([]frontend.Variable, WIDTH)

		for i := 0; i < WIDTH; i++ {
			validWitness.Input[i] = in[i].String()
			validWitness.Output[i] = out[i].String()
		}

		// Check circuit
		assert.CheckCircuit(
			&circuit,
			test.WithValidAssignment(&validWitness),
			test.WithCurves(ecc.BN254),
		)
		log.Println("pass one permutation test iteration")
	}
}

type hashG1Circuit struct {
	Point  G1DecomposedVars
	Digest frontend.Variable `gnark:",public"`
}

func (c *hashG1Circuit) Define(api frontend.API) error {
	perm, err := NewPoseidon2FromParameters(api)
	if err != nil {
		return fmt.Errorf("new poseidon2 perm: %w", err)
	}
	api.AssertIsEqual(c.Digest, perm.HashG1Vars(c.Point))
	return nil
}

// Test: in-circuit point hashing agrees with the native decomposition hash.

func TestHashG1_MatchesNative(t *testing.T) {
	assert := test.NewAssert(t)

	var s frbn254.Element
	s.SetRandom()
	var b big.Int
	var p bn254.G1Affine
	p.ScalarMultiplicationBase(s.BigInt(&b))

	d := DecomposeG1(p)
	want := HashG1(p)

	var circuit, witness hashG1Circuit
	witness.Point = G1DecomposedVars{
		XQ: d[0][0].String(),
		XM: d[0][1].String(),
		YQ: d[1][0].String(),
		YM: d[1][1].String(),
	}
	witness.Digest = want.String()

	assert.CheckCircuit(
		&circuit,
		test.WithValidAssignment(&witness),
		test.WithCurves(ecc.BN254),
	)
}

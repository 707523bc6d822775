// Centralizes Poseidon2 parameters for both native and circuit code.
package hasher

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

const WIDTH = 2
const ROUND_FULL = 8
const ROUND_PARTIAL = 56
const USESEED = true
const SEED = "FOLDGRAD_POSEIDON2_HASH_SEED"

// GetPermutation returns a native Poseidon2 permutation using the parameters above.
var GetPermutation = sync.OnceValue(func() *poseidon2.Permutation {
	if USESEED {
		return poseidon2.NewPermutationWithSeed(WIDTH, ROUND_FULL, ROUND_PARTIAL, SEED)
	}
	return poseidon2.NewPermutation(WIDTH, ROUND_FULL, ROUND_PARTIAL)
})

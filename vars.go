package foldgrad

import (
	"github.com/consensys/gnark-crypto/ecc"
)

const HASH_T = 2
const HASH_RF = 8
const HASH_RP = 56
const HASH_SEED = "FOLDGRAD_POSEIDON2_HASH_SEED"
const PEDERSEN_SEED = "FOLDGRAD_PEDERSEN_GENERATORS"

// Number of bits of a folding challenge; covers any BN254 scalar.
const SCALAR_BITS = 254

// Fixed-point scale for mapping float gradients into the field.
const FIXED_POINT_SCALE = 1_000_000

// Largest gradient magnitude the fixed-point encoding accepts. Beyond this
// the scaled value no longer fits the integer range the encoding reserves.
const FIXED_POINT_MAX = 1 << 40

const PROOF_MAGIC = uint32(0x464c4447) // "FLDG"
const PROOF_VERSION = uint32(2)
const PARAMS_VERSION = uint32(1)

// Longest hash seed a serialized parameter descriptor may carry.
const HASH_SEED_MAX = 256

var FIELD = ecc.BN254.ScalarField()

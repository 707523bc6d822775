package foldgrad

import (
	"fmt"
	"math"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Fixed-point embedding of gradient values into the scalar field. A float is
// scaled by FIXED_POINT_SCALE, rounded, and mapped to the field; negatives
// take the additive inverse. Decoding treats elements above the half modulus
// as negative, so the usable window is symmetric around zero.

var halfModulus = func() *big.Int {
	h := new(big.Int).Rsh(fr.Modulus(), 1)
	return h
}()

// EncodeFixed maps a float to its fixed-point field representative.
func EncodeFixed(v float64) (fr.Element, error) {
	var e fr.Element
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return e, fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	scaled := math.Round(v * FIXED_POINT_SCALE)
	if math.Abs(scaled) >= FIXED_POINT_MAX {
		return e, fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	n := int64(scaled)
	if n >= 0 {
		e.SetUint64(uint64(n))
		return e, nil
	}
	e.SetUint64(uint64(-n))
	e.Neg(&e)
	return e, nil
}

// DecodeFixed inverts EncodeFixed up to rounding.
func DecodeFixed(e fr.Element) (float64, error) {
	var b big.Int
	e.BigInt(&b)
	neg := false
	if b.Cmp(halfModulus) > 0 {
		b.Sub(fr.Modulus(), &b)
		neg = true
	}
	if !b.IsInt64() || b.Int64() >= FIXED_POINT_MAX {
		return 0, fmt.Errorf("%w: element outside fixed-point window", ErrOutOfRange)
	}
	v := float64(b.Int64()) / FIXED_POINT_SCALE
	if neg {
		v = -v
	}
	return v, nil
}

// EncodeVector applies EncodeFixed elementwise.
func EncodeVector(vs []float64) ([]fr.Element, error) {
	out := make([]fr.Element, len(vs))
	for i, v := range vs {
		e, err := EncodeFixed(v)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// DecodeVector applies DecodeFixed elementwise.
func DecodeVector(es []fr.Element) ([]float64, error) {
	out := make([]float64, len(es))
	for i, e := range es {
		v, err := DecodeFixed(e)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

package foldgrad

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Entry is one coefficient of a sparse constraint row.
type Entry struct {
	Col   int
	Coeff fr.Element
}

// Shape is an R1CS over the BN254 scalar field with the z-vector laid out as
// [W | x | u]. Constants ride on the u column, so any linear combination of
// satisfying assignments satisfies the relaxed relation Az∘Bz = u·Cz + E.
type Shape struct {
	NbWit int
	NbPub int
	A     [][]Entry
	B     [][]Entry
	C     [][]Entry
}

func (s *Shape) NbRows() int { return len(s.A) }

// NbCols = |W| + |x| + 1 (the u column).
func (s *Shape) NbCols() int { return s.NbWit + s.NbPub + 1 }

// Z assembles the z-vector from a witness, public inputs and u.
func (s *Shape) Z(w, x []fr.Element, u fr.Element) ([]fr.Element, error) {
	if len(w) != s.NbWit || len(x) != s.NbPub {
		return nil, fmt.Errorf("%w: z-vector %d+%d, shape %d+%d", ErrInternal, len(w), len(x), s.NbWit, s.NbPub)
	}
	z := make([]fr.Element, s.NbCols())
	copy(z, w)
	copy(z[s.NbWit:], x)
	z[s.NbWit+s.NbPub] = u
	return z, nil
}

func mulVec(m [][]Entry, z []fr.Element) []fr.Element {
	out := make([]fr.Element, len(m))
	var t fr.Element
	for i, row := range m {
		for _, e := range row {
			t.Mul(&e.Coeff, &z[e.Col])
			out[i].Add(&out[i], &t)
		}
	}
	return out
}

// IsSatStrict checks Az∘Bz = Cz with u = 1 and no error vector.
func (s *Shape) IsSatStrict(w, x []fr.Element) error {
	var one fr.Element
	one.SetOne()
	z, err := s.Z(w, x, one)
	if err != nil {
		return err
	}
	az, bz, cz := mulVec(s.A, z), mulVec(s.B, z), mulVec(s.C, z)
	var l fr.Element
	for i := range az {
		l.Mul(&az[i], &bz[i])
		if !l.Equal(&cz[i]) {
			return fmt.Errorf("%w: row %d", ErrConstraintUnsatisfied, i)
		}
	}
	return nil
}

// IsSatRelaxed checks Az∘Bz = u·Cz + E.
func (s *Shape) IsSatRelaxed(w, e, x []fr.Element, u fr.Element) error {
	if len(e) != s.NbRows() {
		return fmt.Errorf("%w: error vector length %d, rows %d", ErrInternal, len(e), s.NbRows())
	}
	z, err := s.Z(w, x, u)
	if err != nil {
		return err
	}
	az, bz, cz := mulVec(s.A, z), mulVec(s.B, z), mulVec(s.C, z)
	var l, r fr.Element
	for i := range az {
		l.Mul(&az[i], &bz[i])
		r.Mul(&u, &cz[i])
		r.Add(&r, &e[i])
		if !l.Equal(&r) {
			return fmt.Errorf("%w: relaxed row %d", ErrConstraintUnsatisfied, i)
		}
	}
	return nil
}

// CrossTerm computes T = Az1∘Bz2 + Az2∘Bz1 − u1·Cz2 − u2·Cz1, the slack a
// folding step introduces.
func (s *Shape) CrossTerm(z1, z2 []fr.Element, u1, u2 fr.Element) []fr.Element {
	az1, bz1, cz1 := mulVec(s.A, z1), mulVec(s.B, z1), mulVec(s.C, z1)
	az2, bz2, cz2 := mulVec(s.A, z2), mulVec(s.B, z2), mulVec(s.C, z2)
	t := make([]fr.Element, s.NbRows())
	var acc, tmp fr.Element
	for i := range t {
		acc.Mul(&az1[i], &bz2[i])
		tmp.Mul(&az2[i], &bz1[i])
		acc.Add(&acc, &tmp)
		tmp.Mul(&u1, &cz2[i])
		acc.Sub(&acc, &tmp)
		tmp.Mul(&u2, &cz1[i])
		acc.Sub(&acc, &tmp)
		t[i] = acc
	}
	return t
}

// Digest hashes the full matrix content; equal digests mean identical shapes.
func (s *Shape) Digest() [32]byte {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeMat := func(m [][]Entry) {
		writeInt(len(m))
		for _, row := range m {
			writeInt(len(row))
			for _, e := range row {
				writeInt(e.Col)
				b := e.Coeff.Bytes()
				h.Write(b[:])
			}
		}
	}
	writeInt(s.NbWit)
	writeInt(s.NbPub)
	writeMat(s.A)
	writeMat(s.B)
	writeMat(s.C)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

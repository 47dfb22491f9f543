package operators

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Func is the uniform applied form of a linear operator: dst = L(x).
// dst and x must not alias.
type Func func(dst *mat.VecDense, x mat.Vector) error

// Adapt normalizes a supplied physical operator into a Func. Two forms are
// accepted: a matrix-free Func (used unchanged), or any mat.Matrix (wrapped
// as dst = op * x). Anything else fails with *UnsupportedOperatorError
// naming the operator role.
func Adapt(role string, op any) (Func, error) {
	switch v := op.(type) {
	case Func:
		return v, nil
	case func(dst *mat.VecDense, x mat.Vector) error:
		return v, nil
	case mat.Matrix:
		rows, cols := v.Dims()
		return func(dst *mat.VecDense, x mat.Vector) error {
			if x.Len() != cols {
				return &DimensionMismatchError{Role: role, Want: cols, Got: x.Len()}
			}
			if dst.Len() != rows {
				return &DimensionMismatchError{Role: role, Want: rows, Got: dst.Len()}
			}
			dst.MulVec(v, x)
			return nil
		}, nil
	}
	return nil, &UnsupportedOperatorError{Role: role}
}

// Compose returns the composition outer∘inner as a single Func. innerDim is
// the length of the intermediate vector; the scratch buffer holding it is
// owned by the returned Func, so the composition is not safe for concurrent
// use.
func Compose(outer, inner Func, innerDim int) Func {
	tmp := mat.NewVecDense(innerDim, nil)
	return func(dst *mat.VecDense, x mat.Vector) error {
		if err := inner(tmp, x); err != nil {
			return err
		}
		return outer(dst, tmp)
	}
}

// Materialize extracts the dense matrix of an implicitly defined square
// linear map on a dim-dimensional space by unit-vector probing: column i is
// op applied to the i-th basis vector. It costs dim applications of op and
// is meant to run once, at solver construction.
func Materialize(op Func, dim int) (*mat.Dense, error) {
	return MaterializeRect(op, dim, dim)
}

// MaterializeRect is the rectangular form of Materialize, for maps between
// spaces of different dimension (rows = output length, cols = input length).
func MaterializeRect(op Func, rows, cols int) (*mat.Dense, error) {
	m := mat.NewDense(rows, cols, nil)
	e := mat.NewVecDense(cols, nil)
	col := mat.NewVecDense(rows, nil)
	for j := 0; j < cols; j++ {
		e.Zero()
		e.SetVec(j, 1)
		if err := op(col, e); err != nil {
			return nil, fmt.Errorf("probing column %d: %w", j, err)
		}
		m.SetCol(j, col.RawVector().Data)
	}
	return m, nil
}

// CheckLen verifies that v has the expected length, reporting the owning
// role on mismatch. A nil vector is reported as length 0.
func CheckLen(role string, v *mat.VecDense, want int) error {
	got := 0
	if v != nil {
		got = v.Len()
	}
	if got != want {
		return &DimensionMismatchError{Role: role, Want: want, Got: got}
	}
	return nil
}

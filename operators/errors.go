package operators

import "fmt"

// UnsupportedOperatorError reports a physical operator that exposes neither
// a matrix-free application form nor a matrix-multiply form. Role identifies
// the operator slot it was supplied for (e.g. "A⁻¹", "B1ᵀ", "B2").
type UnsupportedOperatorError struct {
	Role string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %s supports neither function application nor matrix multiply", e.Role)
}

// DimensionMismatchError reports a vector or matrix whose size disagrees
// with the dimensions captured at solver construction.
type DimensionMismatchError struct {
	Role      string
	Want, Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: want %d, got %d", e.Role, e.Want, e.Got)
}

// SingularMatrixError reports a dense operator that could not be inverted or
// factorized. It wraps the underlying linear-algebra error.
type SingularMatrixError struct {
	Name string
	Err  error
}

func (e *SingularMatrixError) Error() string {
	return fmt.Sprintf("%s is singular or badly conditioned: %v", e.Name, e.Err)
}

func (e *SingularMatrixError) Unwrap() error { return e.Err }

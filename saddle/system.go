package saddle

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ruizhi92/fsinteraction/operators"
)

// FluidSolver is the contract the coupled solver consumes: an opaque solver
// for the 2-block fluid saddle-point system that also exposes the dense
// negated inverse of its internal Schur complement for reuse.
type FluidSolver interface {
	// Solve writes the solution of [A B1ᵀ; B2 0]·[c; f] = [rc; rf] into c
	// and f.
	Solve(c, f, rc, rf *mat.VecDense) error

	// SchurComplementInverse returns -Sf⁻¹ where Sf = -B2·A⁻¹·B1ᵀ. The
	// negation is a sign convention the coupled correction steps depend on.
	// The returned matrix is owned by the solver and must not be modified.
	SchurComplementInverse() *mat.Dense

	// Dims reports the fluid state and constraint dimensions (Nc, Nf).
	Dims() (nc, nf int)
}

// Config holds the solver settings for a System.
type Config struct {
	// Symmetric marks the A block symmetric. The dense direct path does not
	// exploit symmetry; the flag is recorded for diagnostics.
	Symmetric bool

	// PosDef marks the A block positive definite.
	PosDef bool

	// CacheFactorization keeps the LU factors of the Schur complement
	// across Solve calls. The system matrix is constant, so this should be
	// on for anything called more than once.
	CacheFactorization bool

	// Tol is the tolerance reported to callers. The dense direct path is
	// exact to factorization accuracy; Tol exists so iterative
	// implementations of FluidSolver share one configuration shape.
	// Zero means 1e-3.
	Tol float64
}

// System is the default dense implementation of FluidSolver. It reduces the
// 2-block saddle system by Schur complement: Sf = -B2·A⁻¹·B1ᵀ is
// materialized once by unit-vector probing of the force space, factorized,
// and reused for every Solve. A⁻¹ is supplied directly rather than A, so no
// factorization of the state block is needed.
//
// A System owns scratch buffers and is not safe for concurrent Solve calls.
type System struct {
	nc, nf int

	ainv, b1t, b2 operators.Func

	schur *mat.Dense // Sf = -B2·A⁻¹·B1ᵀ, nf×nf
	lu    *mat.LU    // cached factorization of schur
	sfInv *mat.Dense // -Sf⁻¹, nf×nf

	cfg Config

	// scratch, state and force sized
	cs1, cs2 *mat.VecDense
	fs       *mat.VecDense
}

// NewSystem builds the dense fluid sub-solver from the state and constraint
// dimensions and the three adapted fluid operators. The Schur complement and
// its negated inverse are computed here, once.
func NewSystem(nc, nf int, ainv, b1t, b2 operators.Func, cfg Config) (*System, error) {
	if nc <= 0 || nf <= 0 {
		return nil, &operators.DimensionMismatchError{Role: "fluid system", Want: 1, Got: min(nc, nf)}
	}
	if cfg.Tol == 0 {
		cfg.Tol = 1e-3
	}

	s := &System{
		nc:   nc,
		nf:   nf,
		ainv: ainv,
		b1t:  b1t,
		b2:   b2,
		cfg:  cfg,
		cs1:  mat.NewVecDense(nc, nil),
		cs2:  mat.NewVecDense(nc, nil),
		fs:   mat.NewVecDense(nf, nil),
	}

	// Probe f ↦ -B2(A⁻¹(B1ᵀ f)) column by column.
	probe := func(dst *mat.VecDense, x mat.Vector) error {
		if err := s.b1t(s.cs1, x); err != nil {
			return fmt.Errorf("B1ᵀ: %w", err)
		}
		if err := s.ainv(s.cs2, s.cs1); err != nil {
			return fmt.Errorf("A⁻¹: %w", err)
		}
		if err := s.b2(dst, s.cs2); err != nil {
			return fmt.Errorf("B2: %w", err)
		}
		dst.ScaleVec(-1, dst)
		return nil
	}
	schur, err := operators.Materialize(probe, nf)
	if err != nil {
		return nil, fmt.Errorf("materializing fluid Schur complement: %w", err)
	}
	s.schur = schur

	var inv mat.Dense
	if err := inv.Inverse(schur); err != nil {
		return nil, &operators.SingularMatrixError{Name: "fluid Schur complement", Err: err}
	}
	inv.Scale(-1, &inv)
	s.sfInv = &inv

	if cfg.CacheFactorization {
		s.lu = &mat.LU{}
		s.lu.Factorize(schur)
	}
	return s, nil
}

// Dims reports the fluid state and constraint dimensions.
func (s *System) Dims() (nc, nf int) { return s.nc, s.nf }

// String summarizes the system dimensions and the recorded solver settings.
func (s *System) String() string {
	return fmt.Sprintf("Fluid saddle system with %d state and %d constraint unknowns "+
		"(symmetric=%t, posdef=%t, cached factorization=%t, tol=%g)",
		s.nc, s.nf, s.cfg.Symmetric, s.cfg.PosDef, s.lu != nil, s.cfg.Tol)
}

// SchurComplementInverse returns the cached -Sf⁻¹. Callers must treat the
// matrix as read-only.
func (s *System) SchurComplementInverse() *mat.Dense { return s.sfInv }

// Solve computes (c, f) for the right-hand side (rc, rf):
//
//	f = Sf⁻¹ (rf - B2 A⁻¹ rc)
//	c = A⁻¹ (rc - B1ᵀ f)
//
// rc and rf are read-only; c and f are overwritten.
func (s *System) Solve(c, f, rc, rf *mat.VecDense) error {
	if err := operators.CheckLen("rc", rc, s.nc); err != nil {
		return err
	}
	if err := operators.CheckLen("rf", rf, s.nf); err != nil {
		return err
	}
	if err := operators.CheckLen("c", c, s.nc); err != nil {
		return err
	}
	if err := operators.CheckLen("f", f, s.nf); err != nil {
		return err
	}

	// Reduced right-hand side: rf - B2 A⁻¹ rc.
	if err := s.ainv(s.cs1, rc); err != nil {
		return fmt.Errorf("A⁻¹: %w", err)
	}
	if err := s.b2(s.fs, s.cs1); err != nil {
		return fmt.Errorf("B2: %w", err)
	}
	s.fs.SubVec(rf, s.fs)

	if err := s.solveSchur(f, s.fs); err != nil {
		return err
	}

	// Back-substitute: c = A⁻¹(rc - B1ᵀ f).
	if err := s.b1t(s.cs1, f); err != nil {
		return fmt.Errorf("B1ᵀ: %w", err)
	}
	s.cs1.SubVec(rc, s.cs1)
	if err := s.ainv(c, s.cs1); err != nil {
		return fmt.Errorf("A⁻¹: %w", err)
	}
	return nil
}

func (s *System) solveSchur(dst, b *mat.VecDense) error {
	if s.lu != nil {
		if err := s.lu.SolveVecTo(dst, false, b); err != nil {
			return &operators.SingularMatrixError{Name: "fluid Schur complement", Err: err}
		}
		return nil
	}
	var lu mat.LU
	lu.Factorize(s.schur)
	if err := lu.SolveVecTo(dst, false, b); err != nil {
		return &operators.SingularMatrixError{Name: "fluid Schur complement", Err: err}
	}
	return nil
}

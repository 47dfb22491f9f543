// Package fsi couples a fluid saddle-point subsystem to a rigid-body/joint
// subsystem and solves the resulting 4-block linear system exactly, by a
// Schur-complement reduction built once and reused across time steps.
package fsi

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ruizhi92/fsinteraction/operators"
	"github.com/ruizhi92/fsinteraction/saddle"
)

// ErrFictitiousMassRequired is returned by the constructor when RhoB is zero
// and no explicit fictitious-mass matrix was supplied. The default
// Mf = M/ρb has no meaning for a massless body, so the caller must choose.
var ErrFictitiousMassRequired = errors.New("rho_b = 0 requires an explicit fictitious-mass matrix Mf")

// State is a solution (or state-shape) tuple of the coupled system. With no
// joint constraints L may be nil.
type State struct {
	C *mat.VecDense // fluid state increment ċ
	F *mat.VecDense // fluid constraint force f
	U *mat.VecDense // body velocity increment u̇
	L *mat.VecDense // joint constraint force λ
}

// RHS is a right-hand-side tuple, one vector per block row. With no joint
// constraints Rl may be nil.
type RHS struct {
	Rc *mat.VecDense // fluid state rows
	Rf *mat.VecDense // fluid constraint rows
	Ru *mat.VecDense // body momentum rows
	Rl *mat.VecDense // joint constraint rows
}

// FluidOperators are the three operators of the fluid saddle block. Each may
// be an operators.Func or a mat.Matrix; see operators.Adapt.
type FluidOperators struct {
	Ainv any // diffusion inverse A⁻¹: FluidState → FluidState
	B1T  any // force-to-state coupling B1ᵀ: FluidForce → FluidState
	B2   any // state-to-force coupling B2: FluidState → FluidForce
}

// BodyOperators are the rigid-body and joint operators, supplied as dense
// matrices. With no joint constraints G1T and G2 are nil.
type BodyOperators struct {
	M   mat.Matrix // body inertia, Nu̇×Nu̇
	G1T mat.Matrix // joint-force-to-body coupling G1ᵀ, Nu̇×Nλ
	G2  mat.Matrix // body-to-joint coupling G2, Nλ×Nu̇
}

// CouplingOperators are the two FSI interface operators, each an
// operators.Func or a mat.Matrix.
type CouplingOperators struct {
	T1T any // fluid force → body velocity, T1ᵀ
	T2  any // body velocity → fluid force, T2
}

// Config controls solver construction.
type Config struct {
	// Tol is the fluid sub-solver tolerance. Zero means 1e-3.
	Tol float64

	// RhoB is the body-to-fluid density ratio entering the added-mass
	// correction (1 - 1/ρb)·M. RhoB == 0 selects the massless-body branch,
	// which subtracts Mf instead and requires it to be set.
	RhoB float64

	// Mf is the fictitious-mass matrix for the RhoB == 0 branch. Ignored
	// otherwise.
	Mf mat.Matrix
}

// DefaultConfig returns the standard configuration: Tol = 1e-3, RhoB = 1.
func DefaultConfig() Config {
	return Config{Tol: 1e-3, RhoB: 1}
}

// SaddleSystem2D solves the coupled fluid–body saddle-point system
//
//	[ A    B1ᵀ    0         0   ] [ ċ ]   [ rċ ]
//	[ B2   0     -T2        0   ] [ f ]   [ rf ]
//	[ 0   -T1ᵀ  (1-1/ρb)M  G1ᵀ  ] [ u̇ ] = [ ru̇ ]
//	[ 0    0      G2        0   ] [ λ ]   [ rλ ]
//
// (for ρb = 0 the body inertia block is -Mf). Construction reduces the
// system once: the fluid Schur inverse is extracted from the sub-solver, the
// implicit body operator T1ᵀ·Sf⁻¹mat·T2 is materialized by unit-vector
// probing, and the dense body+joint block matrix is assembled and
// factorized. Each Solve is then two dense back-substitutions around a
// single fluid sub-solve.
//
// An instance owns scratch buffers and dense factorizations; it is not safe
// for concurrent Solve calls. Callers needing concurrency must construct
// independent instances.
type SaddleSystem2D struct {
	nc, nf, nu, nl int

	fluid saddle.FluidSolver
	sfInv *mat.Dense // -Sf⁻¹, nf×nf, immutable after construction

	t1t, t2 operators.Func
	corr    operators.Func // fluid correction A⁻¹∘B1ᵀ

	sb   *mat.Dense // body+joint block matrix, (nu+nl)², immutable
	sbLU *mat.LU    // cached factorization of sb

	cfg Config
	ws  workspace
}

// workspace holds the preallocated per-call scratch vectors. Solve mutates
// these in place; nothing here survives a call.
type workspace struct {
	fb    *mat.VecDense // fluid force buffer, nf
	ub    *mat.VecDense // body velocity buffer, nu
	cb    *mat.VecDense // fluid state buffer, nc
	t2out *mat.VecDense // T2 output, nf
	rhs   *mat.VecDense // stacked [ru̇; rλ], nu+nl
	sol   *mat.VecDense // stacked [u̇; λ], nu+nl
}

// NewSaddleSystem2D builds the coupled solver around the default dense fluid
// sub-solver. shape fixes the four role dimensions for the instance's
// lifetime; only vector lengths are read from it.
func NewSaddleSystem2D(shape State, fluid FluidOperators, body BodyOperators, coupling CouplingOperators, cfg Config) (*SaddleSystem2D, error) {
	if shape.C == nil || shape.F == nil {
		return nil, &operators.DimensionMismatchError{Role: "fluid state shape", Want: 1, Got: 0}
	}
	ainv, err := operators.Adapt("A⁻¹", fluid.Ainv)
	if err != nil {
		return nil, err
	}
	b1t, err := operators.Adapt("B1ᵀ", fluid.B1T)
	if err != nil {
		return nil, err
	}
	b2, err := operators.Adapt("B2", fluid.B2)
	if err != nil {
		return nil, err
	}
	if cfg.Tol == 0 {
		cfg.Tol = 1e-3
	}
	sub, err := saddle.NewSystem(shape.C.Len(), shape.F.Len(), ainv, b1t, b2, saddle.Config{
		Symmetric:          false,
		PosDef:             true,
		CacheFactorization: true,
		Tol:                cfg.Tol,
	})
	if err != nil {
		return nil, fmt.Errorf("building fluid sub-solver: %w", err)
	}
	return NewSaddleSystem2DFromSolver(sub, shape, FluidCorrection(ainv, b1t, shape.C.Len()), body, coupling, cfg)
}

// FluidCorrection composes the adapted diffusion inverse and force-to-state
// coupling into the correction operator A⁻¹∘B1ᵀ applied during every solve.
func FluidCorrection(ainv, b1t operators.Func, nc int) operators.Func {
	return operators.Compose(ainv, b1t, nc)
}

// NewSaddleSystem2DFromSolver builds the coupled solver around an externally
// supplied fluid sub-solver (for example an iterative one). corr must be the
// fluid correction operator A⁻¹∘B1ᵀ consistent with that solver.
func NewSaddleSystem2DFromSolver(fluid saddle.FluidSolver, shape State, corr operators.Func, body BodyOperators, coupling CouplingOperators, cfg Config) (*SaddleSystem2D, error) {
	nc, nf := fluid.Dims()
	if shape.C == nil || shape.F == nil {
		return nil, &operators.DimensionMismatchError{Role: "fluid state shape", Want: nc, Got: 0}
	}
	if err := operators.CheckLen("fluid state shape", shape.C, nc); err != nil {
		return nil, err
	}
	if err := operators.CheckLen("fluid force shape", shape.F, nf); err != nil {
		return nil, err
	}
	if shape.U == nil {
		return nil, &operators.DimensionMismatchError{Role: "body velocity shape", Want: 1, Got: 0}
	}
	nu := shape.U.Len()
	nl := 0
	if shape.L != nil {
		nl = shape.L.Len()
	}
	if cfg.Tol == 0 {
		cfg.Tol = 1e-3
	}

	t1t, err := operators.Adapt("T1ᵀ", coupling.T1T)
	if err != nil {
		return nil, err
	}
	t2, err := operators.Adapt("T2", coupling.T2)
	if err != nil {
		return nil, err
	}
	if err := checkBodyDims(body, nu, nl); err != nil {
		return nil, err
	}

	s := &SaddleSystem2D{
		nc:    nc,
		nf:    nf,
		nu:    nu,
		nl:    nl,
		fluid: fluid,
		sfInv: fluid.SchurComplementInverse(),
		t1t:   t1t,
		t2:    t2,
		corr:  corr,
		cfg:   cfg,
		ws: workspace{
			fb:    mat.NewVecDense(nf, nil),
			ub:    mat.NewVecDense(nu, nil),
			cb:    mat.NewVecDense(nc, nil),
			t2out: mat.NewVecDense(nf, nil),
			rhs:   mat.NewVecDense(nu+nl, nil),
			sol:   mat.NewVecDense(nu+nl, nil),
		},
	}

	if err := s.assemble(body); err != nil {
		return nil, err
	}
	return s, nil
}

func checkBodyDims(body BodyOperators, nu, nl int) error {
	r, c := body.M.Dims()
	if r != nu || c != nu {
		return &operators.DimensionMismatchError{Role: "M", Want: nu, Got: max(r, c)}
	}
	if nl == 0 {
		return nil
	}
	if body.G1T == nil || body.G2 == nil {
		return &operators.DimensionMismatchError{Role: "G1ᵀ/G2", Want: nl, Got: 0}
	}
	if r, c := body.G1T.Dims(); r != nu || c != nl {
		return &operators.DimensionMismatchError{Role: "G1ᵀ", Want: nu * nl, Got: r * c}
	}
	if r, c := body.G2.Dims(); r != nl || c != nu {
		return &operators.DimensionMismatchError{Role: "G2", Want: nl * nu, Got: r * c}
	}
	return nil
}

// assemble builds the dense body+joint block matrix and caches its LU
// factors. Runs once, at construction.
func (s *SaddleSystem2D) assemble(body BodyOperators) error {
	// The implicit added-mass operator u̇ ↦ T1ᵀ(Sf⁻¹mat·(T2 u̇)) has no
	// matrix form; extract it by probing the body velocity space.
	probe := func(dst *mat.VecDense, x mat.Vector) error {
		if err := s.t2(s.ws.t2out, x); err != nil {
			return fmt.Errorf("T2: %w", err)
		}
		s.ws.fb.MulVec(s.sfInv, s.ws.t2out)
		if err := s.t1t(dst, s.ws.fb); err != nil {
			return fmt.Errorf("T1ᵀ: %w", err)
		}
		return nil
	}
	tmp, err := operators.Materialize(probe, s.nu)
	if err != nil {
		return fmt.Errorf("materializing added-mass operator: %w", err)
	}

	n := s.nu + s.nl
	sb := mat.NewDense(n, n, nil)
	for i := 0; i < s.nu; i++ {
		for j := 0; j < s.nu; j++ {
			sb.Set(i, j, tmp.At(i, j))
		}
	}

	// Inertia correction on the top-left block.
	switch {
	case s.cfg.RhoB != 0:
		scale := 1 - 1/s.cfg.RhoB
		if scale != 0 {
			for i := 0; i < s.nu; i++ {
				for j := 0; j < s.nu; j++ {
					sb.Set(i, j, sb.At(i, j)+scale*body.M.At(i, j))
				}
			}
		}
	default:
		if s.cfg.Mf == nil {
			return ErrFictitiousMassRequired
		}
		if r, c := s.cfg.Mf.Dims(); r != s.nu || c != s.nu {
			return &operators.DimensionMismatchError{Role: "Mf", Want: s.nu, Got: max(r, c)}
		}
		for i := 0; i < s.nu; i++ {
			for j := 0; j < s.nu; j++ {
				sb.Set(i, j, sb.At(i, j)-s.cfg.Mf.At(i, j))
			}
		}
	}

	// Joint coupling blocks; the bottom-right block stays zero.
	for i := 0; i < s.nu; i++ {
		for j := 0; j < s.nl; j++ {
			sb.Set(i, s.nu+j, body.G1T.At(i, j))
		}
	}
	for i := 0; i < s.nl; i++ {
		for j := 0; j < s.nu; j++ {
			sb.Set(s.nu+i, j, body.G2.At(i, j))
		}
	}

	s.sb = sb
	s.sbLU = &mat.LU{}
	s.sbLU.Factorize(sb)
	return nil
}

// Dims reports the four role dimensions (Nc, Nf, Nu̇, Nλ).
func (s *SaddleSystem2D) Dims() (nc, nf, nu, nl int) {
	return s.nc, s.nf, s.nu, s.nl
}

// BodyJointMatrix returns the assembled (Nu̇+Nλ)² block matrix. Read-only.
func (s *SaddleSystem2D) BodyJointMatrix() *mat.Dense { return s.sb }

// FluidSchurInverse returns the negated fluid Schur inverse. Read-only.
func (s *SaddleSystem2D) FluidSchurInverse() *mat.Dense { return s.sfInv }

// String summarizes the constraint counts and the dimensions bound to the
// four state roles.
func (s *SaddleSystem2D) String() string {
	return fmt.Sprintf("Saddle system (2D fluid-body coupling) with %d fluid constraints and %d joint constraints\n"+
		"   Fluid state ċ of dimension %d\n"+
		"   Fluid force f of dimension %d\n"+
		"   Body velocity u̇ of dimension %d\n"+
		"   Joint force λ of dimension %d\n",
		s.nf, s.nl, s.nc, s.nf, s.nu, s.nl)
}

package fsi

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ruizhi92/fsinteraction/operators"
)

// Solve returns the solution of the coupled system for rhs in freshly
// allocated storage. The caller's right-hand side is copied first and never
// mutated.
func (s *SaddleSystem2D) Solve(rhs RHS) (State, error) {
	if err := s.checkRHS(&rhs); err != nil {
		return State{}, err
	}
	out := State{
		C: mat.NewVecDense(s.nc, nil),
		F: mat.NewVecDense(s.nf, nil),
		U: mat.NewVecDense(s.nu, nil),
	}
	r := RHS{
		Rc: mat.VecDenseCopyOf(rhs.Rc),
		Rf: mat.VecDenseCopyOf(rhs.Rf),
		Ru: mat.VecDenseCopyOf(rhs.Ru),
	}
	if s.nl > 0 {
		out.L = mat.NewVecDense(s.nl, nil)
		r.Rl = mat.VecDenseCopyOf(rhs.Rl)
	}
	if err := s.SolveInPlace(&out, &r); err != nil {
		return State{}, err
	}
	return out, nil
}

// SolveInPlace solves the coupled system into out, which must carry vectors
// of the instance's role dimensions. rhs.Ru is mutated: it receives the
// additive T1ᵀf correction of the body block. The other right-hand-side
// vectors are read-only. After an error, out's contents are undefined.
//
// The step order is fixed by the Schur reduction built at construction:
//
//  1. fluid solve under a stationary-body assumption
//  2. fold the resulting fluid force into the body right-hand side
//  3. dense solve of the body+joint block
//  4. correct the fluid solution for the body motion (added mass)
func (s *SaddleSystem2D) SolveInPlace(out *State, rhs *RHS) error {
	if err := s.checkRHS(rhs); err != nil {
		return err
	}
	if err := s.checkState(out); err != nil {
		return err
	}

	// 1. Stationary-body fluid solve.
	if err := s.fluid.Solve(out.C, out.F, rhs.Rc, rhs.Rf); err != nil {
		return fmt.Errorf("fluid sub-solve: %w", err)
	}

	// 2. Body right-hand-side correction: ru̇ += T1ᵀ f.
	if err := s.t1t(s.ws.ub, out.F); err != nil {
		return fmt.Errorf("T1ᵀ: %w", err)
	}
	rhs.Ru.AddVec(rhs.Ru, s.ws.ub)

	// 3. Composite body+joint solve against the cached factorization.
	for i := 0; i < s.nu; i++ {
		s.ws.rhs.SetVec(i, rhs.Ru.AtVec(i))
	}
	for i := 0; i < s.nl; i++ {
		s.ws.rhs.SetVec(s.nu+i, rhs.Rl.AtVec(i))
	}
	if err := s.sbLU.SolveVecTo(s.ws.sol, false, s.ws.rhs); err != nil {
		return &operators.SingularMatrixError{Name: "body+joint block matrix", Err: err}
	}
	for i := 0; i < s.nu; i++ {
		out.U.SetVec(i, s.ws.sol.AtVec(i))
	}
	for i := 0; i < s.nl; i++ {
		out.L.SetVec(i, s.ws.sol.AtVec(s.nu+i))
	}

	// 4. Fluid correction for body motion: the force the moving body
	// induces on the fluid constraint, fb = Sf⁻¹mat·T2 u̇, feeds back into
	// both fluid unknowns.
	if err := s.t2(s.ws.t2out, out.U); err != nil {
		return fmt.Errorf("T2: %w", err)
	}
	s.ws.fb.MulVec(s.sfInv, s.ws.t2out)
	if err := s.corr(s.ws.cb, s.ws.fb); err != nil {
		return fmt.Errorf("A⁻¹B1ᵀ: %w", err)
	}
	out.C.AddVec(out.C, s.ws.cb)
	out.F.SubVec(out.F, s.ws.fb)
	return nil
}

func (s *SaddleSystem2D) checkRHS(rhs *RHS) error {
	if err := operators.CheckLen("rċ", rhs.Rc, s.nc); err != nil {
		return err
	}
	if err := operators.CheckLen("rf", rhs.Rf, s.nf); err != nil {
		return err
	}
	if err := operators.CheckLen("ru̇", rhs.Ru, s.nu); err != nil {
		return err
	}
	if s.nl == 0 {
		return nil
	}
	return operators.CheckLen("rλ", rhs.Rl, s.nl)
}

func (s *SaddleSystem2D) checkState(out *State) error {
	if err := operators.CheckLen("ċ", out.C, s.nc); err != nil {
		return err
	}
	if err := operators.CheckLen("f", out.F, s.nf); err != nil {
		return err
	}
	if err := operators.CheckLen("u̇", out.U, s.nu); err != nil {
		return err
	}
	if s.nl == 0 {
		return nil
	}
	return operators.CheckLen("λ", out.L, s.nl)
}

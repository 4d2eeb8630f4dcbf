// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package disk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// lsqResult is the outcome of the bounded least-squares minimization.
type lsqResult struct {
	X       []float64
	Jac     *mat.Dense // residual Jacobian at the solution
	Cost    float64    // half the sum of squared residuals
	NFev    int
	NIter   int
	Success bool
	Status  string
}

// leastSquares minimizes half the squared norm of the residual vector fn(x)
// over lb <= x <= ub with a Levenberg-Marquardt trust-region iteration on
// the damped normal equations. The Jacobian is built by forward finite
// differences with the given relative step per parameter, stepping away
// from the nearer bound.
func leastSquares(fn func([]float64) ([]float64, error), x0, lb, ub, diffStep []float64) (*lsqResult, error) {
	n:=len(x0)
	if len(lb)!=n || len(ub)!=n || len(diffStep)!=n {
		return nil, fmt.Errorf("disk: bounds and step vectors must match the %d free parameters", n)
	}
	for j:=0; j<n; j++ {
		if lb[j]>ub[j] { return nil, fmt.Errorf("disk: lower bound %g above upper bound %g for parameter %d", lb[j], ub[j], j) }
	}
	x:=clampVec(append([]float64(nil), x0...), lb, ub)

	f, err:=fn(x)
	if err!=nil { return nil, err }
	m:=len(f)
	if m<n { return nil, fmt.Errorf("disk: %d residuals for %d free parameters", m, n) }
	cost:=0.5*floats.Dot(f, f)
	nfev:=1

	const (
		maxIter=200
		ftol   =1e-10
		xtol   =1e-10
		gtol   =1e-12
	)
	lambda:=1e-3
	status:="maximum iterations reached"
	success:=false
	var jac *mat.Dense
	niter:=0

	for ; niter<maxIter; niter++ {
		jac, err=numJac(fn, x, f, lb, ub, diffStep)
		if err!=nil { return nil, err }
		nfev+=n

		// gradient of the cost
		g:=make([]float64, n)
		gv:=mat.NewVecDense(n, g)
		gv.MulVec(jac.T(), mat.NewVecDense(m, f))
		if floats.Norm(g, math.Inf(1))<gtol*math.Max(1, cost) {
			status="gradient tolerance reached"
			success=true
			break
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)

		accepted:=false
		for lambda<=1e10 {
			// damped normal equations
			a:=mat.NewSymDense(n, nil)
			for i:=0; i<n; i++ {
				for j:=i; j<n; j++ { a.SetSym(i, j, jtj.At(i, j)) }
				d:=jtj.At(i, i)
				if d<1e-12 { d=1e-12 }
				a.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}
			var ch mat.Cholesky
			if !ch.Factorize(a) {
				lambda*=10
				continue
			}
			step:=mat.NewVecDense(n, nil)
			if err:=ch.SolveVecTo(step, gv); err!=nil {
				lambda*=10
				continue
			}
			xNew:=make([]float64, n)
			for j:=0; j<n; j++ { xNew[j]=x[j]-step.AtVec(j) }
			clampVec(xNew, lb, ub)
			dx:=0.0
			for j:=0; j<n; j++ { dx+=(xNew[j]-x[j])*(xNew[j]-x[j]) }
			dx=math.Sqrt(dx)
			if dx==0 {
				lambda*=10
				continue
			}

			fNew, err:=fn(xNew)
			if err!=nil { return nil, err }
			nfev++
			costNew:=0.5*floats.Dot(fNew, fNew)
			if costNew<cost {
				relDrop:=(cost-costNew)/math.Max(cost, 1e-300)
				relStep:=dx/math.Max(floats.Norm(x, 2), 1)
				copy(x, xNew)
				f=fNew
				cost=costNew
				if lambda>1e-12 { lambda*=0.3 }
				accepted=true
				if relDrop<ftol || relStep<xtol {
					status="cost tolerance reached"
					success=true
				}
				break
			}
			lambda*=10
		}
		if !accepted {
			// no downhill step within the damping range: converged or stuck
			status="no further improvement possible"
			success=true
			break
		}
		if success { break }
	}

	// Jacobian at the solution, for the parameter covariance estimate
	jac, err=numJac(fn, x, f, lb, ub, diffStep)
	if err!=nil { return nil, err }
	nfev+=n

	return &lsqResult{X: x, Jac: jac, Cost: cost, NFev: nfev, NIter: niter, Success: success, Status: status}, nil
}

// numJac builds the m x n forward-difference Jacobian of fn at x, with f
// the residuals at x. The step for parameter j is diffStep[j] relative to
// its magnitude, flipped in sign if it would cross the upper bound.
func numJac(fn func([]float64) ([]float64, error), x, f, lb, ub, diffStep []float64) (*mat.Dense, error) {
	m, n:=len(f), len(x)
	jac:=mat.NewDense(m, n, nil)
	xs:=make([]float64, n)
	for j:=0; j<n; j++ {
		copy(xs, x)
		h:=diffStep[j]*math.Max(math.Abs(x[j]), 1)
		if x[j]+h>ub[j] { h=-h }
		if x[j]+h<lb[j] {
			// parameter pinched between bounds; no sensitivity available
			for i:=0; i<m; i++ { jac.Set(i, j, 0) }
			continue
		}
		xs[j]=x[j]+h
		fj, err:=fn(xs)
		if err!=nil { return nil, err }
		inv:=1/(xs[j]-x[j])
		for i:=0; i<m; i++ { jac.Set(i, j, (fj[i]-f[i])*inv) }
	}
	return jac, nil
}

func clampVec(x, lb, ub []float64) []float64 {
	for j:=range x {
		if x[j]<lb[j] { x[j]=lb[j] }
		if x[j]>ub[j] { x[j]=ub[j] }
	}
	return x
}

// nelderMead polishes a solution with a derivative-free simplex search on
// the summed squared residuals, keeping the parameters inside the bounds
// with a hard penalty.
func nelderMead(fn func([]float64) ([]float64, error), x0, lb, ub []float64) ([]float64, error) {
	problem:=optimize.Problem{
		Func: func(x []float64) float64 {
			for j:=range x {
				if x[j]<lb[j] || x[j]>ub[j] { return math.Inf(1) }
			}
			f, err:=fn(x)
			if err!=nil { return math.Inf(1) }
			return floats.Dot(f, f)
		},
	}
	result, err:=optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err!=nil { return nil, err }
	return result.X, nil
}

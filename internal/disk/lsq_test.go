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
	"math"
	"testing"
)

func TestLeastSquaresLinear(t *testing.T) {
	// exactly solvable line fit: residuals vanish at a=2, b=-1
	xs:=[]float64{-3, -1, 0, 1, 2, 4}
	ys:=make([]float64, len(xs))
	for i, x:=range xs { ys[i]=2*x-1 }
	fn:=func(p []float64) ([]float64, error) {
		r:=make([]float64, len(xs))
		for i, x:=range xs { r[i]=p[0]*x+p[1]-ys[i] }
		return r, nil
	}
	res, err:=leastSquares(fn, []float64{0, 0}, []float64{-10, -10}, []float64{10, 10}, []float64{0.01, 0.01})
	if err!=nil { t.Fatalf("leastSquares: %s", err) }
	if !res.Success { t.Errorf("fit did not converge: %s", res.Status) }
	if math.Abs(res.X[0]-2)>1e-6 || math.Abs(res.X[1]+1)>1e-6 {
		t.Errorf("solution (%f, %f); want (2, -1)", res.X[0], res.X[1])
	}
	if res.Cost>1e-10 { t.Errorf("final cost %g; want ~0", res.Cost) }
}

func TestLeastSquaresHitsBound(t *testing.T) {
	// unconstrained minimum at x=5 lies above the upper bound 3
	fn:=func(p []float64) ([]float64, error) {
		return []float64{p[0]-5}, nil
	}
	res, err:=leastSquares(fn, []float64{0}, []float64{-10}, []float64{3}, []float64{0.01})
	if err!=nil { t.Fatalf("leastSquares: %s", err) }
	if math.Abs(res.X[0]-3)>1e-8 {
		t.Errorf("bounded solution %f; want 3", res.X[0])
	}
}

func TestLeastSquaresClampsStart(t *testing.T) {
	fn:=func(p []float64) ([]float64, error) {
		return []float64{p[0]}, nil
	}
	res, err:=leastSquares(fn, []float64{100}, []float64{-1}, []float64{1}, []float64{0.01})
	if err!=nil { t.Fatalf("leastSquares: %s", err) }
	if res.X[0] < -1 || res.X[0]>1 {
		t.Errorf("solution %f escaped the bounds", res.X[0])
	}
}

func TestLeastSquaresBadBounds(t *testing.T) {
	fn:=func(p []float64) ([]float64, error) { return []float64{p[0]}, nil }
	if _, err:=leastSquares(fn, []float64{0}, []float64{1}, []float64{-1}, []float64{0.01}); err==nil {
		t.Errorf("expected error for crossed bounds")
	}
}

func TestNelderMeadQuadratic(t *testing.T) {
	fn:=func(p []float64) ([]float64, error) {
		return []float64{p[0]-1, 2*(p[1]-2)}, nil
	}
	x, err:=nelderMead(fn, []float64{0, 0}, []float64{-10, -10}, []float64{10, 10})
	if err!=nil { t.Fatalf("nelderMead: %s", err) }
	if math.Abs(x[0]-1)>1e-3 || math.Abs(x[1]-2)>1e-3 {
		t.Errorf("solution (%f, %f); want (1, 2)", x[0], x[1])
	}
}

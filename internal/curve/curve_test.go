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


package curve

import (
	"math"
	"testing"
)

func TestFamiliesAreConsistent(t *testing.T) {
	families:=[]Curve{Tanh{}, PowerExp{}, Exp{}, ExpBase{}, Const{}, Sersic{}}
	for _, c:=range families {
		np:=c.NPar()
		if len(c.GuessPar())!=np {
			t.Errorf("%T: guess length %d; want %d", c, len(c.GuessPar()), np)
		}
		if len(c.ParNames())!=np {
			t.Errorf("%T: names length %d; want %d", c, len(c.ParNames()), np)
		}
		lb, ub:=c.Bounds()
		if len(lb)!=np || len(ub)!=np {
			t.Errorf("%T: bounds lengths %d,%d; want %d", c, len(lb), len(ub), np)
		}
		for i:=range lb {
			if lb[i]>=ub[i] {
				t.Errorf("%T: lb[%d]=%f >= ub[%d]=%f", c, i, lb[i], i, ub[i])
			}
		}
		// the default guess must be fittable
		g:=c.GuessPar()
		for i:=range g {
			if g[i]<lb[i] || g[i]>ub[i] {
				t.Errorf("%T: guess[%d]=%f outside bounds [%f,%f]", c, i, g[i], lb[i], ub[i])
			}
		}
	}
}

func TestTanhShape(t *testing.T) {
	epsilon:=1e-6
	r:=[]float64{0, 1, 10, 1000}
	dst:=make([]float64, len(r))
	Tanh{}.Sample(dst, r, []float64{200, 10})
	if dst[0]!=0 { t.Errorf("tanh at r=0 is %f; want 0", dst[0]) }
	if math.Abs(dst[3]-200)>epsilon {
		t.Errorf("tanh asymptote %f; want 200", dst[3])
	}
	if dst[1]>=dst[2] { t.Errorf("tanh not monotonic: %f >= %f", dst[1], dst[2]) }
}

func TestPowerExpRisesFromZero(t *testing.T) {
	r:=[]float64{0, 2, 5, 20}
	dst:=make([]float64, len(r))
	PowerExp{}.Sample(dst, r, []float64{30, 5, 0.5})
	if dst[0]!=0 { t.Errorf("power-exp at r=0 is %f; want 0", dst[0]) }
	for i:=1; i<len(dst); i++ {
		if dst[i]<=dst[i-1] { t.Errorf("power-exp not rising at r=%f", r[i]) }
	}
}

func TestByName(t *testing.T) {
	names:=[]string{"tanh", "powerexp", "exp", "expbase", "const", "sersic"}
	for _, name:=range names {
		if _, err:=ByName(name); err!=nil {
			t.Errorf("ByName(%s): %s", name, err)
		}
	}
	if _, err:=ByName("linear"); err==nil {
		t.Errorf("expected error for unknown family name")
	}
}

func TestConstIsConstant(t *testing.T) {
	r:=[]float64{0, 3, 7}
	dst:=make([]float64, len(r))
	Const{}.Sample(dst, r, []float64{25})
	for i:=range dst {
		if dst[i]!=25 { t.Errorf("const profile %f at r=%f; want 25", dst[i], r[i]) }
	}
}

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


package kin

import (
	"math"
	"strings"
	"testing"

	"github.com/mlnoga/diskfit/internal/beam"
)

func TestNewValidation(t *testing.T) {
	n:=4
	vel:=make([]float64, n*n)
	bad:=make([]float64, n*n-1)
	if _, err:=New(n, Maps{Vel: bad}); err==nil {
		t.Errorf("expected error for non-square velocity map")
	}
	if _, err:=New(n, Maps{Vel: vel, VelIvar: bad}); err==nil {
		t.Errorf("expected error for mismatched companion map")
	}
	if _, err:=New(n, Maps{Vel: vel, X: make([]float64, n*n)}); err==nil {
		t.Errorf("expected error for x without y")
	}
	binid:=make([]int, n*n)
	if _, err:=New(n, Maps{Vel: vel, BinID: binid}); err==nil {
		t.Errorf("expected error for binned data without coordinate grids")
	}
	if _, err:=New(n, Maps{Vel: vel}); err!=nil {
		t.Errorf("valid minimal construction failed: %s", err)
	}
}

func TestDefaultGridIsSkyRight(t *testing.T) {
	n:=10
	k, err:=New(n, Maps{Vel: make([]float64, n*n)})
	if err!=nil { t.Fatalf("new: %s", err) }
	// x decreases with increasing column index, y increases with row index
	if k.X[0]<=k.X[1] {
		t.Errorf("x not sky-right: x[0]=%f x[1]=%f", k.X[0], k.X[1])
	}
	if k.Y[0]>=k.Y[n*n-1] {
		t.Errorf("y not increasing along rows")
	}
	// centered: zero is on the grid
	foundX, foundY:=false, false
	for i:=range k.X {
		if k.X[i]==0 { foundX=true }
		if k.Y[i]==0 { foundY=true }
	}
	if !foundX || !foundY { t.Errorf("default grid not centered on zero") }
}

func TestRemapZeroFieldUnmasked(t *testing.T) {
	n:=10
	k, err:=New(n, Maps{Vel: make([]float64, n*n)})
	if err!=nil { t.Fatalf("new: %s", err) }
	grid, mask, err:=k.Remap("vel")
	if err!=nil { t.Fatalf("remap: %s", err) }
	for i:=range grid {
		if grid[i]!=0 { t.Errorf("i=%d: remapped value %f; want 0", i, grid[i]) }
		if mask[i] { t.Errorf("i=%d: remapped zero field masked", i) }
	}
}

func TestRemapUnknownAttribute(t *testing.T) {
	n:=4
	k, _:=New(n, Maps{Vel: make([]float64, n*n)})
	if _, _, err:=k.Remap("velocity"); err==nil || !strings.Contains(err.Error(), "velocity") {
		t.Errorf("expected attribute error naming the missing field, got %v", err)
	}
}

func TestBinRemapRoundTripUnbinned(t *testing.T) {
	n:=6
	vel:=make([]float64, n*n)
	for i:=range vel { vel[i]=float64(i)*1.5-7 }
	k, err:=New(n, Maps{Vel: vel})
	if err!=nil { t.Fatalf("new: %s", err) }
	grid, _, err:=k.RemapVec(k.Vel)
	if err!=nil { t.Fatalf("remap: %s", err) }
	binned, err:=k.Bin(grid)
	if err!=nil { t.Fatalf("bin: %s", err) }
	for i:=range binned {
		if binned[i]!=k.Vel[i] {
			t.Errorf("i=%d: round trip %f; want %f", i, binned[i], k.Vel[i])
		}
	}
}

func TestBinnedConstruction(t *testing.T) {
	// 4x4 grid with two 2-cell bins, one single-cell bin, and -1 cells
	n:=4
	vel:=make([]float64, n*n)
	for i:=range vel { vel[i]=float64(i) }
	binid:=[]int{
		0, 0, -1, -1,
		5, 5, -1, -1,
		2, -1, -1, -1,
		-1, -1, -1, -1,
	}
	gx:=make([]float64, n*n)
	gy:=make([]float64, n*n)
	k, err:=New(n, Maps{Vel: vel, BinID: binid, GridX: gx, GridY: gy})
	if err!=nil { t.Fatalf("new: %s", err) }

	if k.NBin!=3 { t.Fatalf("nbin=%d; want 3", k.NBin) }
	// unique ids sorted ascending, -1 excluded
	want:=[]int{0, 2, 5}
	for i, id:=range k.BinID {
		if id!=want[i] { t.Errorf("binid[%d]=%d; want %d", i, id, want[i]) }
	}
	// no -1 cell appears in the grid index
	for _, gi:=range k.GridIndx {
		if binid[gi]<0 { t.Errorf("grid index %d points at an unbinned cell", gi) }
	}
	// representative values are the first occurrence per bin
	if k.Vel[0]!=0 || k.Vel[1]!=8 || k.Vel[2]!=4 {
		t.Errorf("representative velocities %v; want [0 8 4]", k.Vel)
	}
	// rows of the bin transform sum to one
	for i:=0; i<k.NBin; i++ {
		if s:=k.binTransform.rowSum(i); math.Abs(s-1)>1e-14 {
			t.Errorf("bin %d: row sum %f; want 1", i, s)
		}
	}
	// binning a full-grid map yields the per-bin means
	binned, err:=k.Bin(vel)
	if err!=nil { t.Fatalf("bin: %s", err) }
	wantMeans:=[]float64{0.5, 8, 4.5}
	for i:=range binned {
		if math.Abs(binned[i]-wantMeans[i])>1e-14 {
			t.Errorf("bin %d: mean %f; want %f", i, binned[i], wantMeans[i])
		}
	}
	// remap of the binned means puts the bin mean at every cell of the bin
	grid, mask, err:=k.RemapVec(binned)
	if err!=nil { t.Fatalf("remap: %s", err) }
	for gi, id:=range binid {
		if id<0 {
			if !mask[gi] { t.Errorf("cell %d: unbinned cell not masked", gi) }
			continue
		}
		var m float64
		switch id {
		case 0: m=0.5
		case 2: m=4.5
		case 5: m=8
		}
		if math.Abs(grid[gi]-m)>1e-14 {
			t.Errorf("cell %d: remapped mean %f; want %f", gi, grid[gi], m)
		}
	}
}

func TestIvarMasking(t *testing.T) {
	n:=3
	vel:=make([]float64, n*n)
	ivar:=make([]float64, n*n)
	for i:=range ivar { ivar[i]=1 }
	ivar[2]=0
	ivar[7]=-4
	k, err:=New(n, Maps{Vel: vel, VelIvar: ivar})
	if err!=nil { t.Fatalf("new: %s", err) }
	for i:=range k.VelMask {
		want:=i==2 || i==7
		if k.VelMask[i]!=want {
			t.Errorf("i=%d: mask=%v; want %v", i, k.VelMask[i], want)
		}
	}
}

func TestMaxRadius(t *testing.T) {
	n:=5
	k, err:=New(n, Maps{Vel: make([]float64, n*n)})
	if err!=nil { t.Fatalf("new: %s", err) }
	maxr:=k.MaxRadius()
	for i:=range k.X {
		if r:=math.Hypot(k.X[i], k.Y[i]); r>maxr+1e-14 {
			t.Errorf("point %d at radius %f beyond max radius %f", i, r, maxr)
		}
	}
}

func TestSigPhys2(t *testing.T) {
	n:=2
	sig:=[]float64{10, 20, 30, 40}
	corr:=[]float64{6, 0, 0, 0}
	k, err:=New(n, Maps{Vel: make([]float64, n*n), Sig: sig, SigCorr: corr})
	if err!=nil { t.Fatalf("new: %s", err) }
	sp2:=k.SigPhys2()
	if sp2[0]!=64 { t.Errorf("sig_phys2[0]=%f; want 64", sp2[0]) }
	if sp2[1]!=400 { t.Errorf("sig_phys2[1]=%f; want 400", sp2[1]) }
}

func TestMockFaceOn(t *testing.T) {
	vt:=[]float64{100, 150}
	zeros:=[]float64{0, 0}
	k, err:=Mock(MockOpts{Size: 20, Inc: 0, PA: 30, Vsys: 1234, VT: vt, V2T: zeros, V2R: zeros, Sig: zeros})
	if err!=nil { t.Fatalf("mock: %s", err) }
	for i, v:=range k.Vel {
		if math.Abs(v-1234)>1e-10 {
			t.Errorf("i=%d: face-on velocity %f; want systemic 1234", i, v)
		}
	}
}

func TestMockBorder(t *testing.T) {
	vt:=[]float64{0, 0}
	k, err:=Mock(MockOpts{Size: 10, VT: vt, V2T: vt, V2R: vt, Sig: vt, Border: 2})
	if err!=nil { t.Fatalf("mock: %s", err) }
	if k.BorderMask==nil { t.Fatalf("mock with border recorded no border mask") }
	masked:=0
	for _, b:=range k.VelMask {
		if b { masked++ }
	}
	if masked!=0 { t.Errorf("border applied before Border() call: %d masked", masked) }
	if err:=k.Border(); err!=nil { t.Fatalf("border: %s", err) }
	for i, b:=range k.BorderMask {
		if b && !k.VelMask[i] { t.Errorf("i=%d: border cell not masked after Border()", i) }
	}
}

func TestMockScienceSizePSFWithBorder(t *testing.T) {
	sz:=10
	psf:=beam.Gaussian(sz, 2)
	vt:=[]float64{50, 100}
	zeros:=[]float64{0, 0}
	k, err:=Mock(MockOpts{Size: sz, VT: vt, V2T: zeros, V2R: zeros, Sig: zeros, Border: 2, PSF: psf})
	if err!=nil { t.Fatalf("mock: %s", err) }
	if k.N<=sz { t.Fatalf("grid side %d not padded beyond %d", k.N, sz) }
	if len(k.Beam)!=k.N*k.N {
		t.Fatalf("beam has %d elements; want %d", len(k.Beam), k.N*k.N)
	}
	// zero padding preserves the kernel mass and recenters the peak
	sum:=0.0
	peak:=0
	for i, v:=range k.Beam {
		sum+=v
		if v>k.Beam[peak] { peak=i }
	}
	if math.Abs(sum-1)>1e-12 { t.Errorf("padded kernel sum %f; want 1", sum) }
	if want:=(k.N/2)*k.N+k.N/2; peak!=want {
		t.Errorf("padded kernel peak at %d; want center %d", peak, want)
	}

	if _, err:=Mock(MockOpts{Size: sz, VT: vt, V2T: zeros, V2R: zeros, Sig: zeros, Border: 2, PSF: make([]float64, 7)}); err==nil {
		t.Errorf("expected error for a psf matching neither grid size")
	}
}

func TestBorderWithoutMaskFails(t *testing.T) {
	n:=4
	k, _:=New(n, Maps{Vel: make([]float64, n*n)})
	if err:=k.Border(); err==nil {
		t.Errorf("expected error applying border without a border mask")
	}
}

func TestAddNoiseSetsIvar(t *testing.T) {
	n:=8
	k, err:=New(n, Maps{Vel: make([]float64, n*n)})
	if err!=nil { t.Fatalf("new: %s", err) }
	k.AddNoise(5, 0)
	if k.VelIvar==nil { t.Fatalf("noise injection recorded no inverse variance") }
	if k.VelIvar[0]!=1.0/25 { t.Errorf("vel ivar %f; want 0.04", k.VelIvar[0]) }
	nonzero:=0
	for _, v:=range k.Vel {
		if v!=0 { nonzero++ }
	}
	if nonzero<n*n/2 { t.Errorf("only %d of %d measurements perturbed", nonzero, n*n) }
}

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


// Package kin holds the observational data fit by the disk models: 2D
// velocity, velocity-dispersion and surface-brightness maps on a square
// spatial grid, either pixel-resolved or spatially binned, together with
// the sparse operator that aggregates model evaluations on the full grid
// back into the binned measurement space.
package kin

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/diskfit/internal/beam"
)

// Maps bundles the raw per-pixel inputs to New. Every non-nil slice must
// be a flat row-major n x n array. Bad-pixel masks are true where a pixel
// must be ignored. BinID associates each pixel with a bin; -1 means the
// pixel is not part of any bin.
type Maps struct {
	Vel     []float64
	VelIvar []float64
	VelMask []bool

	X, Y []float64

	SB     []float64
	SBIvar []float64
	SBMask []bool

	Sig     []float64
	SigIvar []float64
	SigMask []bool
	SigCorr []float64 // quadrature correction: sigma_phys^2 = sig^2 - sigCorr^2

	PSF      []float64
	Aperture []float64

	BinID  []int
	GridX  []float64
	GridY  []float64

	Reff float64
	FWHM float64

	BorderMask []bool

	VelCovar *mat.SymDense // optional, dimension = number of unique measurements
	SigCovar *mat.SymDense
}

// Kinematics holds one observed kinematic map set. After construction the
// per-measurement vectors (Vel, Sig, SB, X, Y and their companions) have
// one entry per unique measurement; for unbinned data that is one entry
// per grid cell. The measurement vectors are not mutated by the fitting
// code; Border is the only mutator and only widens masks.
type Kinematics struct {
	N    int // side length of the square spatial grid
	NBin int // number of unique measurements

	Vel, VelIvar []float64
	VelMask      []bool
	X, Y         []float64
	SB, SBIvar   []float64
	SBMask       []bool
	Sig, SigIvar []float64
	SigMask      []bool
	SigCorr      []float64

	Beam    []float64    // centered effective smoothing kernel, may be nil
	BeamFFT []complex128 // its 2D Fourier transform, may be nil

	BinID      []int // sorted unique bin ids, excluding -1
	GridX      []float64
	GridY      []float64
	GridIndx   []int // flattened grid index of every cell belonging to a valid bin
	BinInverse []int // for each such cell, the index of its unique measurement

	Reff float64
	FWHM float64

	BorderMask []bool // recorded but not applied until Border() is called

	VelCovar *mat.SymDense
	SigCovar *mat.SymDense

	binTransform *csr

	sigPhys2     []float64
	sigPhys2Ivar []float64
}

// New validates the raw maps and builds the Kinematics container,
// including the default sky-right coordinate grid, the combined smoothing
// kernel and its FFT, and the bin-aggregation operator.
func New(n int, m Maps) (*Kinematics, error) {
	if n<=0 { return nil, fmt.Errorf("kinematics: grid side must be positive, got %d", n) }
	npix:=n*n
	if m.Vel==nil { return nil, fmt.Errorf("kinematics: velocity map is required") }
	if len(m.Vel)!=npix { return nil, fmt.Errorf("kinematics: velocity map has %d elements; want %d for a square %dx%d grid", len(m.Vel), npix, n, n) }
	for _, a:=range [][]float64{m.VelIvar, m.X, m.Y, m.SB, m.SBIvar, m.Sig, m.SigIvar, m.SigCorr, m.PSF, m.Aperture, m.GridX, m.GridY} {
		if a!=nil && len(a)!=npix {
			return nil, fmt.Errorf("kinematics: companion map has %d elements; want %d", len(a), npix)
		}
	}
	for _, b:=range [][]bool{m.VelMask, m.SBMask, m.SigMask, m.BorderMask} {
		if b!=nil && len(b)!=npix {
			return nil, fmt.Errorf("kinematics: mask has %d elements; want %d", len(b), npix)
		}
	}
	if m.BinID!=nil && len(m.BinID)!=npix {
		return nil, fmt.Errorf("kinematics: bin id map has %d elements; want %d", len(m.BinID), npix)
	}
	if (m.X==nil)!=(m.Y==nil) {
		return nil, fmt.Errorf("kinematics: must provide both x and y or neither")
	}
	if m.BinID!=nil && (m.GridX==nil || m.GridY==nil) {
		return nil, fmt.Errorf("kinematics: binned data requires the per-cell coordinate grids gridX and gridY")
	}

	k:=&Kinematics{N: n, Reff: m.Reff, FWHM: m.FWHM}
	k.setBeam(m.PSF, m.Aperture)

	// coordinate grid; the default mimics sky-right coordinates with the
	// origin at the grid center and x increasing toward lower column index
	x, y:=m.X, m.Y
	if x==nil {
		x=make([]float64, npix)
		y=make([]float64, npix)
		for i:=0; i<n; i++ {
			for j:=0; j<n; j++ {
				x[i*n+j]=float64(n-1-j-n/2)
				y[i*n+j]=float64(i-n/2)
			}
		}
	}
	k.GridX, k.GridY=m.GridX, m.GridY
	if k.GridX==nil {
		k.GridX=append([]float64(nil), x...)
		k.GridY=append([]float64(nil), y...)
	}

	k.Vel, k.VelIvar, k.VelMask=k.ingest(m.Vel, m.VelIvar, m.VelMask)
	k.SB, k.SBIvar, k.SBMask=k.ingest(m.SB, m.SBIvar, m.SBMask)
	k.Sig, k.SigIvar, k.SigMask=k.ingest(m.Sig, m.SigIvar, m.SigMask)
	if m.SigCorr!=nil { k.SigCorr=append([]float64(nil), m.SigCorr...) }
	k.X=append([]float64(nil), x...)
	k.Y=append([]float64(nil), y...)
	if m.BorderMask!=nil { k.BorderMask=append([]bool(nil), m.BorderMask...) }

	// bin bookkeeping: representative index per unique measurement, the
	// grid-cell to measurement mapping, and the aggregation operator
	var indx []int
	if m.BinID==nil {
		indx=make([]int, npix)
		k.GridIndx=make([]int, npix)
		k.BinInverse=make([]int, npix)
		for i:=0; i<npix; i++ {
			indx[i]=i
			k.GridIndx[i]=i
			k.BinInverse[i]=i
		}
		k.NBin=npix
		k.binTransform=newIdentityCSR(npix)
	} else {
		uniq, first, counts:=uniqueBins(m.BinID)
		nbin:=len(uniq)
		if nbin==0 { return nil, fmt.Errorf("kinematics: bin id map contains no valid bins") }
		binOf:=make(map[int]int, nbin)
		for b, id:=range uniq { binOf[id]=b }
		for t, id:=range m.BinID {
			if id<0 { continue }
			k.GridIndx=append(k.GridIndx, t)
			k.BinInverse=append(k.BinInverse, binOf[id])
		}
		bins:=make([]int, len(k.GridIndx))
		for t:=range k.GridIndx { bins[t]=k.BinInverse[t] }
		k.BinID=uniq
		k.NBin=nbin
		k.binTransform=newBinCSR(nbin, npix, k.GridIndx, bins, counts)
		indx=first
	}

	// subset per-measurement vectors to one representative per bin
	k.X=subsetFloat(k.X, indx)
	k.Y=subsetFloat(k.Y, indx)
	k.Vel=subsetFloat(k.Vel, indx)
	k.VelIvar=subsetFloat(k.VelIvar, indx)
	k.VelMask=subsetBool(k.VelMask, indx)
	k.SB=subsetFloat(k.SB, indx)
	k.SBIvar=subsetFloat(k.SBIvar, indx)
	k.SBMask=subsetBool(k.SBMask, indx)
	k.Sig=subsetFloat(k.Sig, indx)
	k.SigIvar=subsetFloat(k.SigIvar, indx)
	k.SigMask=subsetBool(k.SigMask, indx)
	k.SigCorr=subsetFloat(k.SigCorr, indx)
	k.BorderMask=subsetBool(k.BorderMask, indx)

	if m.VelCovar!=nil {
		if r, _:=m.VelCovar.Dims(); r!=k.NBin {
			return nil, fmt.Errorf("kinematics: velocity covariance is %dx%d; want %dx%d", r, r, k.NBin, k.NBin)
		}
		k.VelCovar=m.VelCovar
	}
	if m.SigCovar!=nil {
		if r, _:=m.SigCovar.Dims(); r!=k.NBin {
			return nil, fmt.Errorf("kinematics: dispersion covariance is %dx%d; want %dx%d", r, r, k.NBin, k.NBin)
		}
		k.SigCovar=m.SigCovar
	}
	return k, nil
}

// setBeam combines the seeing PSF and the aperture image into the
// effective smoothing kernel and precomputes its Fourier transform.
func (k *Kinematics) setBeam(psf, aperture []float64) {
	if psf==nil && aperture==nil { return }
	k.BeamFFT=beam.ConstructBeam(psf, aperture, k.N)
	if psf!=nil && aperture!=nil {
		k.Beam=beam.Kernel(k.BeamFFT, k.N)
	} else if psf!=nil {
		k.Beam=append([]float64(nil), psf...)
	} else {
		k.Beam=append([]float64(nil), aperture...)
	}
}

// ingest copies one (data, ivar, mask) triple, building the combined
// bad-pixel mask. Any pixel whose inverse variance is not greater than
// zero is masked. A nil data map yields all nils.
func (k *Kinematics) ingest(data, ivar []float64, mask []bool) ([]float64, []float64, []bool) {
	if data==nil { return nil, nil, nil }
	npix:=k.N*k.N
	outMask:=make([]bool, npix)
	if mask!=nil { copy(outMask, mask) }
	outData:=append([]float64(nil), data...)
	var outIvar []float64
	if ivar!=nil {
		outIvar=append([]float64(nil), ivar...)
		for i, v:=range outIvar {
			if !(v>0) { outMask[i]=true }
		}
	}
	return outData, outIvar, outMask
}

// uniqueBins returns the sorted unique non-negative bin ids, the flattened
// index of the first cell of each bin, and the cell count per bin.
func uniqueBins(binID []int) (uniq, first, counts []int) {
	seen:=map[int]int{} // id -> position in uniq
	for t, id:=range binID {
		if id<0 { continue }
		if _, ok:=seen[id]; !ok {
			seen[id]=len(uniq)
			uniq=append(uniq, id)
			first=append(first, t)
			counts=append(counts, 0)
		}
		counts[seen[id]]++
	}
	// sort ascending by id, carrying first and counts along
	for i:=1; i<len(uniq); i++ {
		for j:=i; j>0 && uniq[j-1]>uniq[j]; j-- {
			uniq[j-1], uniq[j]=uniq[j], uniq[j-1]
			first[j-1], first[j]=first[j], first[j-1]
			counts[j-1], counts[j]=counts[j], counts[j-1]
		}
	}
	return uniq, first, counts
}

func subsetFloat(a []float64, indx []int) []float64 {
	if a==nil { return nil }
	out:=make([]float64, len(indx))
	for i, t:=range indx { out[i]=a[t] }
	return out
}

func subsetBool(a []bool, indx []int) []bool {
	if a==nil { return nil }
	out:=make([]bool, len(indx))
	for i, t:=range indx { out[i]=a[t] }
	return out
}

// attr resolves a named per-measurement vector and its mask, if any.
func (k *Kinematics) attr(name string) (data []float64, mask []bool, err error) {
	switch name {
	case "vel":      return k.Vel, k.VelMask, nil
	case "vel_ivar": return k.VelIvar, k.VelMask, nil
	case "sig":      return k.Sig, k.SigMask, nil
	case "sig_ivar": return k.SigIvar, k.SigMask, nil
	case "sig_corr": return k.SigCorr, k.SigMask, nil
	case "sb":       return k.SB, k.SBMask, nil
	case "sb_ivar":  return k.SBIvar, k.SBMask, nil
	case "x":        return k.X, nil, nil
	case "y":        return k.Y, nil, nil
	}
	return nil, nil, fmt.Errorf("kinematics: no attribute called %s", name)
}

// RemapVec scatters a per-measurement vector back onto the full 2D grid.
// The returned mask is true for grid cells not covered by any measurement.
func (k *Kinematics) RemapVec(data []float64) (grid []float64, mask []bool, err error) {
	if len(data)!=k.NBin {
		return nil, nil, fmt.Errorf("kinematics: remap input has %d elements; want %d", len(data), k.NBin)
	}
	grid=make([]float64, k.N*k.N)
	mask=make([]bool, k.N*k.N)
	for i:=range mask { mask[i]=true }
	for t, gi:=range k.GridIndx {
		grid[gi]=data[k.BinInverse[t]]
		mask[gi]=false
	}
	return grid, mask, nil
}

// Remap scatters a named attribute back onto the full 2D grid, combining
// the coverage mask with the attribute's own bad-pixel mask. Returns nil
// slices without error if the attribute was never provided.
func (k *Kinematics) Remap(name string) (grid []float64, mask []bool, err error) {
	data, amask, err:=k.attr(name)
	if err!=nil { return nil, nil, err }
	if data==nil { return nil, nil, nil }
	grid, mask, err=k.RemapVec(data)
	if err!=nil { return nil, nil, err }
	if amask!=nil {
		for t, gi:=range k.GridIndx {
			if amask[k.BinInverse[t]] { mask[gi]=true }
		}
	}
	return grid, mask, nil
}

// RemapFilled remaps a named attribute with all masked cells replaced by
// the fill value. Returns nil if the attribute was never provided.
func (k *Kinematics) RemapFilled(name string, fill float64) ([]float64, error) {
	grid, mask, err:=k.Remap(name)
	if err!=nil || grid==nil { return nil, err }
	for i:=range grid {
		if mask[i] { grid[i]=fill }
	}
	return grid, nil
}

// Bin aggregates a full-grid array into measurement space by applying the
// bin transform, i.e. the per-bin unweighted mean.
func (k *Kinematics) Bin(grid []float64) ([]float64, error) {
	if len(grid)!=k.N*k.N {
		return nil, fmt.Errorf("kinematics: data to rebin has %d elements; want %d", len(grid), k.N*k.N)
	}
	out:=make([]float64, k.NBin)
	k.binTransform.mulVec(out, grid)
	return out, nil
}

// MaxRadius returns the on-sky radius enclosing the coordinate extrema.
func (k *Kinematics) MaxRadius() float64 {
	minx, maxx:=minMax(k.X)
	miny, maxy:=minMax(k.Y)
	return math.Hypot(math.Max(math.Abs(minx), maxx), math.Max(math.Abs(miny), maxy))
}

func minMax(a []float64) (min, max float64) {
	min, max=a[0], a[0]
	for _, v:=range a {
		if v<min { min=v }
		if v>max { max=v }
	}
	return min, max
}

// SigPhys2 returns the quadrature-corrected squared velocity dispersion,
// sig^2 - sigCorr^2, or nil if no dispersion data exists.
func (k *Kinematics) SigPhys2() []float64 {
	if k.Sig==nil { return nil }
	if k.sigPhys2==nil {
		k.sigPhys2=make([]float64, k.NBin)
		for i, s:=range k.Sig {
			k.sigPhys2[i]=s*s
			if k.SigCorr!=nil { k.sigPhys2[i]-=k.SigCorr[i]*k.SigCorr[i] }
		}
	}
	return k.sigPhys2
}

// SigPhys2Ivar propagates the dispersion inverse variance to the squared
// dispersion: ivar(sig^2) = ivar(sig)/(4 sig^2). Nil if no dispersion
// errors exist.
func (k *Kinematics) SigPhys2Ivar() []float64 {
	if k.SigIvar==nil { return nil }
	if k.sigPhys2Ivar==nil {
		k.sigPhys2Ivar=make([]float64, k.NBin)
		for i, iv:=range k.SigIvar {
			if s:=k.Sig[i]; s!=0 && iv>0 {
				k.sigPhys2Ivar[i]=iv/(4*s*s)
			}
		}
	}
	return k.sigPhys2Ivar
}

// Border applies the recorded border mask to all measurement masks.
// Fails if the container was built without one.
func (k *Kinematics) Border() error {
	if k.BorderMask==nil {
		return fmt.Errorf("kinematics: no border mask was set")
	}
	for i, b:=range k.BorderMask {
		if !b { continue }
		if k.VelMask!=nil { k.VelMask[i]=true }
		if k.SigMask!=nil { k.SigMask[i]=true }
		if k.SBMask!=nil { k.SBMask[i]=true }
	}
	return nil
}

// AddNoise perturbs the velocity (and, if present, dispersion)
// measurements with Gaussian noise of the given standard deviations and
// records the matching inverse variances. Zero sigmas are no-ops.
func (k *Kinematics) AddNoise(velSigma, sigSigma float64) {
	rng:=fastrand.RNG{}
	if velSigma>0 {
		if k.VelIvar==nil { k.VelIvar=make([]float64, k.NBin) }
		iv:=1/(velSigma*velSigma)
		for i:=range k.Vel {
			k.Vel[i]+=velSigma*gaussian(&rng)
			k.VelIvar[i]=iv
		}
	}
	if sigSigma>0 && k.Sig!=nil {
		if k.SigIvar==nil { k.SigIvar=make([]float64, k.NBin) }
		iv:=1/(sigSigma*sigSigma)
		for i:=range k.Sig {
			k.Sig[i]+=sigSigma*gaussian(&rng)
			k.SigIvar[i]=iv
		}
		k.sigPhys2, k.sigPhys2Ivar=nil, nil
	}
}

// gaussian draws a standard normal deviate by Box-Muller.
func gaussian(rng *fastrand.RNG) float64 {
	u1:=(float64(rng.Uint32n(1<<24))+0.5)/(1<<24)
	u2:=(float64(rng.Uint32n(1<<24))+0.5)/(1<<24)
	return math.Sqrt(-2*math.Log(u1))*math.Cos(2*math.Pi*u2)
}

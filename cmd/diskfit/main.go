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

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/pbnjay/memory"

	df "github.com/mlnoga/diskfit/internal"
	"github.com/mlnoga/diskfit/internal/curve"
	"github.com/mlnoga/diskfit/internal/disk"
	"github.com/mlnoga/diskfit/internal/kin"
	"github.com/mlnoga/diskfit/internal/rest"
)

const version = "0.1.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var logFile    = flag.String("log", "", "save log output to `file` in addition to stdout")

var model = flag.String("model", "axisym", "disk model to fit, one of axisym, bisym")
var rc    = flag.String("rc", "tanh", "rotation curve family, one of tanh, powerexp, exp, expbase, const")
var dc    = flag.String("dc", "", "dispersion profile family, blank fits the velocity field only")

var size   = flag.Int("size", 40, "side length of the mock data grid in pixels")
var inc    = flag.Float64("inc", 45, "mock disk inclination in degrees")
var pa     = flag.Float64("pa", 30, "mock disk position angle in degrees")
var pab    = flag.Float64("pab", 45, "mock bisymmetric feature position angle in degrees")
var vsys   = flag.Float64("vsys", 0, "mock systemic velocity")
var vt     = flag.String("vt", "50,100,150,200,250", "mock tangential velocity per radial bin, comma separated")
var v2t    = flag.String("v2t", "0,0,0,0,0", "mock second-order tangential velocity per radial bin")
var v2r    = flag.String("v2r", "0,0,0,0,0", "mock second-order radial velocity per radial bin")
var sigArg = flag.String("sig", "30,30,30,30,30", "mock velocity dispersion per radial bin")
var border = flag.Float64("border", 0, "mock border width in FWHM units, masked before fitting; 0=off")

var velNoise = flag.Float64("velNoise", 0, "gaussian noise sigma added to mock velocities; 0=off")
var sigNoise = flag.Float64("sigNoise", 0, "gaussian noise sigma added to mock dispersions; 0=off")

var scatterArg = flag.String("scatter", "", "intrinsic scatter per kinematic moment, comma separated")
var sbWeight   = flag.Bool("sbWeight", false, "weight the beam smearing with the mock surface brightness")
var nm         = flag.Bool("nm", false, "polish the least-squares solution with a Nelder-Mead pass")

func main() {
	logWriter:=os.Stdout
	start:=time.Now()
	flag.Usage=func(){
		fmt.Fprintf(logWriter, `Diskfit Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (mockfit|serve|version)

Commands:
  mockfit Generate a mock galaxy velocity field and fit a disk model to it
  serve   Serve the fitting API via REST on port 8080
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *logFile!="" {
		err:=df.LogAlsoToFile(*logFile)
		if err!=nil { df.LogFatalf("Unable to open logfile '%s'\n", *logFile) }
	}
	defer df.LogSync()

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			df.LogFatalf("Could not create CPU profile: %s\n", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			df.LogFatalf("Could not start CPU profile: %s\n", err)
		}
		defer pprof.StopCPUProfile()
	}

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}

	switch args[0] {
	case "serve":
		rest.Serve()

	case "mockfit":
		df.LogPrintf("Diskfit %s on a machine with %d MiB physical memory\n", version, totalMiBs)
		if err:=runMockFit(); err!=nil {
			df.LogFatalf("error: %s\n", err)
		}
		df.LogPrintf("Done after %v\n", time.Since(start))

	case "version":
		df.LogPrintf("Diskfit version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		df.LogPrintf("Unknown command '%s'\n", args[0])
		flag.Usage()
		os.Exit(-1)
	}
}

// runMockFit generates a synthetic galaxy per the mock flags, optionally
// perturbs it with noise, fits the selected disk model and reports.
func runMockFit() error {
	vts, err:=parseFloats(*vt)
	if err!=nil { return err }
	v2ts, err:=parseFloats(*v2t)
	if err!=nil { return err }
	v2rs, err:=parseFloats(*v2r)
	if err!=nil { return err }
	sigs, err:=parseFloats(*sigArg)
	if err!=nil { return err }

	df.LogPrintf("Generating %dx%d mock galaxy: inc %.1f pa %.1f pab %.1f vsys %.1f\n",
		*size, *size, *inc, *pa, *pab, *vsys)
	k, err:=kin.Mock(kin.MockOpts{
		Size: *size, Inc: *inc, PA: *pa, PAB: *pab, Vsys: *vsys,
		VT: vts, V2T: v2ts, V2R: v2rs, Sig: sigs,
		Border: *border,
	})
	if err!=nil { return err }
	if *velNoise>0 || *sigNoise>0 {
		df.LogPrintf("Adding noise: vel sigma %.2f, sig sigma %.2f\n", *velNoise, *sigNoise)
		k.AddNoise(*velNoise, *sigNoise)
	}
	if *border>0 {
		if err:=k.Border(); err!=nil { return err }
	}

	rcCurve, err:=curve.ByName(*rc)
	if err!=nil { return err }
	var dcCurve curve.Curve
	if *dc!="" {
		if dcCurve, err=curve.ByName(*dc); err!=nil { return err }
	}
	var scatter []float64
	if *scatterArg!="" {
		if scatter, err=parseFloats(*scatterArg); err!=nil { return err }
	}
	opts:=disk.FitOptions{Scatter: scatter, SBWeight: *sbWeight, NelderMead: *nm}

	switch *model {
	case "axisym":
		d:=disk.NewAxisymmetricDisk(rcCurve, dcCurve)
		df.LogPrintf("Fitting axisymmetric disk with %d parameters\n", d.NPar())
		res, err:=d.LSQFit(k, opts)
		if err!=nil { return err }
		d.Report(os.Stdout, res)
	case "bisym":
		d:=disk.NewBisymmetricDisk(rcCurve, nil, nil, dcCurve)
		df.LogPrintf("Fitting bisymmetric disk with %d parameters\n", d.NPar())
		res, err:=d.LSQFit(k, opts)
		if err!=nil { return err }
		d.Report(os.Stdout, res)
	default:
		return fmt.Errorf("unknown disk model %s; use axisym or bisym", *model)
	}
	return nil
}

// parseFloats splits a comma-separated flag value into floats.
func parseFloats(s string) ([]float64, error) {
	parts:=strings.Split(s, ",")
	out:=make([]float64, len(parts))
	for i, p:=range parts {
		v, err:=strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err!=nil { return nil, fmt.Errorf("invalid number '%s' in '%s'", p, s) }
		out[i]=v
	}
	return out, nil
}

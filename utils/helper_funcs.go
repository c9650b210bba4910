package utils

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/attnlab/attention/params"
)

// Guard functions
func ChooseValidHeads(dModel, preferred int) int {
	if preferred <= 0 {
		return 1
	}
	if dModel%preferred == 0 {
		return preferred
	}

	best := 1
	limit := preferred
	if limit > dModel {
		limit = dModel
	}
	for h := limit; h >= 1; h-- {
		if dModel%h == 0 {
			fmt.Printf("Warning: using %d heads instead of %d\n", h, preferred)
			best = h
			break
		}
	}
	return best
}

// Shared source for all weight init. Reseed in main (or a test) before
// building layers so runs are reproducible.
var src = rand.NewPCG(uint64(params.Config.Seed), uint64(params.Config.Seed))

func Reseed(seed int64) {
	src = rand.NewPCG(uint64(seed), uint64(seed))
}

// RandomArray returns 'size' samples from U(-1/sqrt(v), 1/sqrt(v)).
func RandomArray(size int, v float64) []float64 {
	dist := distuv.Uniform{
		Min: -1.0 / math.Sqrt(v+1e-12),
		Max: 1.0 / math.Sqrt(v+1e-12),
		Src: src,
	}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// NormalArray returns 'size' samples from N(0, 1/sqrt(v)).
func NormalArray(size int, v float64) []float64 {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: 1.0 / math.Sqrt(v+1e-12),
		Src:   src,
	}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// Helper functions

func OneHot(n, idx int) *mat.Dense {
	v := make([]float64, n)
	if idx >= 0 && idx < n {
		v[idx] = 1.0
	}
	return mat.NewDense(n, 1, v)
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func MatrixNorm(m *mat.Dense) float64 {
	r, c := m.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// debugging

var (
	debugOut   io.Writer = os.Stdout
	debugCalls int
)

// Debugf prints when params.Config.Debug is on. The first call always
// prints; after that output is rate limited to every DebugEvery-th
// call so long runs stay readable.
func Debugf(format string, args ...any) {
	if !params.Config.Debug {
		return
	}
	debugCalls++
	every := params.Config.DebugEvery
	if every <= 1 || (debugCalls-1)%every == 0 {
		fmt.Fprintf(debugOut, "[debug] "+format+"\n", args...)
	}
}

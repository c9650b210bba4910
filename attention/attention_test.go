package attention

import (
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/attnlab/attention/utils"
)

// reference computes softmax(Q^T K / sqrt(dK)) applied to V with plain
// loops, independent of the package's matrix plumbing.
func reference(Wq, Wk, Wv, Xq, Xkv *mat.Dense) *mat.Dense {
	dK, _ := Wq.Dims()
	dV, _ := Wv.Dims()
	_, Tq := Xq.Dims()
	_, Tk := Xkv.Dims()

	Q := mat.NewDense(dK, Tq, nil)
	Q.Mul(Wq, Xq)
	K := mat.NewDense(dK, Tk, nil)
	K.Mul(Wk, Xkv)
	V := mat.NewDense(dV, Tk, nil)
	V.Mul(Wv, Xkv)

	scale := 1.0 / math.Sqrt(float64(dK))
	A := mat.NewDense(Tq, Tk, nil)
	for i := 0; i < Tq; i++ {
		row := make([]float64, Tk)
		mx := math.Inf(-1)
		for j := 0; j < Tk; j++ {
			s := 0.0
			for d := 0; d < dK; d++ {
				s += Q.At(d, i) * K.At(d, j)
			}
			row[j] = s * scale
			if row[j] > mx {
				mx = row[j]
			}
		}
		sum := 0.0
		for j := range row {
			row[j] = math.Exp(row[j] - mx)
			sum += row[j]
		}
		for j := range row {
			A.Set(i, j, row[j]/sum)
		}
	}

	Z := mat.NewDense(dV, Tq, nil)
	for d := 0; d < dV; d++ {
		for i := 0; i < Tq; i++ {
			s := 0.0
			for j := 0; j < Tk; j++ {
				s += A.At(i, j) * V.At(d, j)
			}
			Z.Set(d, i, s)
		}
	}
	return Z
}

func matsClose(t *testing.T, name string, got, want mat.Matrix, tol float64) {
	t.Helper()
	gr, gc := got.Dims()
	wr, wc := want.Dims()
	if gr != wr || gc != wc {
		t.Fatalf("%s dims (%d,%d), want (%d,%d)", name, gr, gc, wr, wc)
	}
	for i := 0; i < gr; i++ {
		for j := 0; j < gc; j++ {
			if math.Abs(got.At(i, j)-want.At(i, j)) > tol {
				t.Fatalf("%s[%d,%d] = %v, want %v", name, i, j, got.At(i, j), want.At(i, j))
			}
		}
	}
}

func TestHeadMatchesFormula(t *testing.T) {
	utils.Reseed(7)
	dModel, dK, dV, T := 4, 3, 5, 6
	h := NewHead(dModel, dK, dV)
	X := mat.NewDense(dModel, T, utils.RandomArray(dModel*T, float64(dModel)))

	Z := h.Forward(X)

	want := reference(h.Wquery, h.Wkey, h.Wvalue, X, X)
	matsClose(t, "Z", Z, want, 1e-12)

	// weight rows are probability distributions
	for i, s := range utils.RowSums(h.Weights) {
		if math.Abs(s-1.0) > 1e-12 {
			t.Errorf("weight row %d sums to %v", i, s)
		}
	}
}

func TestHeadScoresAreUnscaled(t *testing.T) {
	utils.Reseed(7)
	h := NewHead(4, 3, 3)
	X := mat.NewDense(4, 2, utils.RandomArray(8, 4))
	h.Forward(X)

	// Scores must be the raw Q^T K dot products
	want := mat.NewDense(2, 2, nil)
	want.Mul(h.Q.T(), h.K)
	matsClose(t, "Scores", h.Scores, want, 1e-12)
}

func TestCrossSameSequenceEqualsSelf(t *testing.T) {
	utils.Reseed(11)
	h := NewHead(4, 4, 4)
	X := mat.NewDense(4, 5, utils.RandomArray(20, 4))

	self := mat.DenseCopyOf(h.Forward(X))
	cross := h.Cross(X, X)

	matsClose(t, "cross", cross, self, 1e-12)
}

func TestCrossDifferentLengths(t *testing.T) {
	utils.Reseed(11)
	dModel, dK, dV := 4, 3, 6
	h := NewHead(dModel, dK, dV)
	Xq := mat.NewDense(dModel, 2, utils.RandomArray(dModel*2, float64(dModel)))
	Xkv := mat.NewDense(dModel, 7, utils.RandomArray(dModel*7, float64(dModel)))

	Z := h.Cross(Xq, Xkv)

	if r, c := h.Weights.Dims(); r != 2 || c != 7 {
		t.Fatalf("weights dims (%d,%d), want (2,7)", r, c)
	}
	if r, c := Z.Dims(); r != dV || c != 2 {
		t.Fatalf("context dims (%d,%d), want (%d,2)", r, c, dV)
	}
	want := reference(h.Wquery, h.Wkey, h.Wvalue, Xq, Xkv)
	matsClose(t, "Z", Z, want, 1e-12)
}

func TestCausalHeadBlocksFuture(t *testing.T) {
	utils.Reseed(3)
	h := NewHead(4, 4, 4)
	h.Causal = true
	T := 5
	X := mat.NewDense(4, T, utils.RandomArray(4*T, 4))
	h.Forward(X)

	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			if w := h.Weights.At(i, j); w > 1e-12 {
				t.Errorf("causal weight [%d,%d] = %v, want ~0", i, j, w)
			}
		}
	}
	for i, s := range utils.RowSums(h.Weights) {
		if math.Abs(s-1.0) > 1e-12 {
			t.Errorf("row %d sums to %v", i, s)
		}
	}
}

func TestHeadWidthMismatchPanics(t *testing.T) {
	h := NewHead(4, 4, 4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on wrong input width")
		}
	}()
	h.Forward(mat.NewDense(3, 2, nil))
}

func TestCausalCrossPanics(t *testing.T) {
	h := NewHead(4, 4, 4)
	h.Causal = true
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic: causal mask with two sequence lengths")
		}
	}()
	h.attend(mat.NewDense(4, 2, nil), mat.NewDense(4, 3, nil), true)
}

// ---- Multi-head ----

func TestMultiHeadDims(t *testing.T) {
	utils.Reseed(5)
	m := NewMultiHead(16, 4, false)
	if m.H != 4 || m.DHead != 4 {
		t.Fatalf("H=%d DHead=%d, want 4 and 4", m.H, m.DHead)
	}
	X := mat.NewDense(16, 6, utils.RandomArray(16*6, 16))
	Y := m.Forward(X)
	if r, c := Y.Dims(); r != 16 || c != 6 {
		t.Fatalf("Y dims (%d,%d), want (16,6)", r, c)
	}
	for h := 0; h < m.H; h++ {
		if r, c := m.A[h].Dims(); r != 6 || c != 6 {
			t.Fatalf("A[%d] dims (%d,%d), want (6,6)", h, r, c)
		}
		for i, s := range utils.RowSums(m.A[h]) {
			if math.Abs(s-1.0) > 1e-12 {
				t.Errorf("head %d row %d sums to %v", h, i, s)
			}
		}
	}
}

func TestMultiHeadConcatLayout(t *testing.T) {
	utils.Reseed(5)
	m := NewMultiHead(8, 2, false)
	X := mat.NewDense(8, 3, utils.RandomArray(24, 8))
	m.Forward(X)

	// OCat rows [h*dHead, (h+1)*dHead) must equal head h's context
	for h := 0; h < m.H; h++ {
		for i := 0; i < m.DHead; i++ {
			for j := 0; j < 3; j++ {
				got := m.OCat.At(h*m.DHead+i, j)
				want := m.O[h].At(i, j)
				if got != want {
					t.Fatalf("OCat[%d,%d] = %v, want head %d value %v", h*m.DHead+i, j, got, h, want)
				}
			}
		}
	}
}

func TestMultiHeadEachHeadMatchesSingleHead(t *testing.T) {
	utils.Reseed(9)
	m := NewMultiHead(8, 2, false)
	X := mat.NewDense(8, 4, utils.RandomArray(32, 8))
	m.Forward(X)

	for h := 0; h < m.H; h++ {
		want := reference(m.Wquery[h], m.Wkey[h], m.Wvalue[h], X, X)
		matsClose(t, "head context", m.O[h], want, 1e-12)
	}
}

func TestMultiHeadParallelMatchesSerial(t *testing.T) {
	utils.Reseed(13)
	serial := NewMultiHead(16, 4, false)
	utils.Reseed(13)
	parallel := NewMultiHead(16, 4, true)

	X := mat.NewDense(16, 6, utils.RandomArray(16*6, 16))
	ys := serial.Forward(X)
	yp := parallel.Forward(X)
	matsClose(t, "parallel Y", yp, ys, 0)
}

func TestMultiHeadCausal(t *testing.T) {
	utils.Reseed(13)
	m := NewMultiHead(8, 2, false)
	m.Causal = true
	T := 4
	X := mat.NewDense(8, T, utils.RandomArray(8*T, 8))
	m.Forward(X)

	for h := 0; h < m.H; h++ {
		for i := 0; i < T; i++ {
			for j := i + 1; j < T; j++ {
				if w := m.A[h].At(i, j); w > 1e-12 {
					t.Errorf("head %d weight [%d,%d] = %v, want ~0", h, i, j, w)
				}
			}
		}
	}
}

func TestMultiHeadInvalidHeadCountFallsBack(t *testing.T) {
	utils.Reseed(1)
	m := NewMultiHead(16, 5, false) // 5 does not divide 16
	if m.H != 4 {
		t.Fatalf("H = %d, want fallback to 4", m.H)
	}
	if m.DHead*m.H != m.DModel {
		t.Fatalf("DHead*H = %d, want %d", m.DHead*m.H, m.DModel)
	}
}

// ---- Persistence ----

func TestHeadSaveLoadRoundtrip(t *testing.T) {
	utils.Reseed(21)
	h := NewHead(4, 3, 5)
	h.Causal = true
	path := filepath.Join(t.TempDir(), "head.gob")
	if err := h.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadHead(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.DModel != 4 || got.DK != 3 || got.DV != 5 || !got.Causal {
		t.Fatalf("restored dims %d/%d/%d causal=%v", got.DModel, got.DK, got.DV, got.Causal)
	}
	matsClose(t, "Wquery", got.Wquery, h.Wquery, 0)
	matsClose(t, "Wkey", got.Wkey, h.Wkey, 0)
	matsClose(t, "Wvalue", got.Wvalue, h.Wvalue, 0)

	// restored head must be usable, including the causal mask path
	X := mat.NewDense(4, 3, utils.RandomArray(12, 4))
	want := h.Forward(X)
	matsClose(t, "restored forward", got.Forward(X), want, 1e-12)
}

func TestMultiHeadSaveLoadRoundtrip(t *testing.T) {
	utils.Reseed(22)
	m := NewMultiHead(8, 2, false)
	path := filepath.Join(t.TempDir(), "mh.gob")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadMultiHead(path)
	if err != nil {
		t.Fatal(err)
	}
	X := mat.NewDense(8, 4, utils.RandomArray(32, 8))
	matsClose(t, "restored forward", got.Forward(X), m.Forward(X), 1e-12)
}

func TestLoadHeadMissingFile(t *testing.T) {
	if _, err := LoadHead(filepath.Join(t.TempDir(), "nope.gob")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMultiHeadRejectsMalformedFile(t *testing.T) {
	full := make([]float64, 4*8) // dHead*dModel for the cases below
	cases := []struct {
		name string
		data multiData
	}{
		{
			name: "truncated head slice",
			data: multiData{
				H: 2, DModel: 8, DHead: 4,
				WqData: [][]float64{full, make([]float64, 5)},
				WkData: [][]float64{full, full},
				WvData: [][]float64{full, full},
				WoData: make([]float64, 64),
			},
		},
		{
			name: "truncated output projection",
			data: multiData{
				H: 2, DModel: 8, DHead: 4,
				WqData: [][]float64{full, full},
				WkData: [][]float64{full, full},
				WvData: [][]float64{full, full},
				WoData: make([]float64, 3),
			},
		},
		{
			name: "missing heads",
			data: multiData{
				H: 2, DModel: 8, DHead: 4,
				WoData: make([]float64, 64),
			},
		},
		{
			name: "dims that do not multiply out",
			data: multiData{
				H: 3, DModel: 8, DHead: 4,
				WqData: [][]float64{full, full, full},
				WkData: [][]float64{full, full, full},
				WvData: [][]float64{full, full, full},
				WoData: make([]float64, 64),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "mh.gob")
			f, err := os.Create(path)
			if err != nil {
				t.Fatal(err)
			}
			if err := gob.NewEncoder(f).Encode(&tc.data); err != nil {
				t.Fatal(err)
			}
			f.Close()

			// must fail with an error, not panic in mat.NewDense
			if _, err := LoadMultiHead(path); err == nil {
				t.Fatal("expected error for malformed weight file")
			}
		})
	}
}

// ---- Benchmarks ----

func BenchmarkHeadForward(b *testing.B) {
	utils.Reseed(1)
	h := NewHead(64, 64, 64)
	X := mat.NewDense(64, 128, utils.RandomArray(64*128, 64))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Forward(X)
	}
}

func BenchmarkMultiHeadForward(b *testing.B) {
	utils.Reseed(1)
	m := NewMultiHead(64, 8, false)
	X := mat.NewDense(64, 128, utils.RandomArray(64*128, 64))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Forward(X)
	}
}

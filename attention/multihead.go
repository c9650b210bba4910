package attention

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/attnlab/attention/utils"
)

// MultiHead runs H independently parameterized heads over the same
// input, concatenates their outputs along the feature dimension and
// mixes them with an output projection. Each head works in a
// dHead = dModel/H subspace.
type MultiHead struct {
	H      int
	DModel int
	DHead  int

	Wquery  []*mat.Dense // per head (dHead x dModel)
	Wkey    []*mat.Dense
	Wvalue  []*mat.Dense
	Woutput *mat.Dense // (dModel x dModel)

	// cache from the last forward pass
	X       *mat.Dense
	Q, K, V []*mat.Dense
	Scores  []*mat.Dense
	A       []*mat.Dense // per-head attention weights (T x T)
	O       []*mat.Dense // per-head context (dHead x T)
	OCat    *mat.Dense   // concatenated heads (dModel x T)

	Causal bool

	maskCache map[int]*mat.Dense
	lastT     int
	parallel  bool // parallelize over heads if true
}

// NewMultiHead builds H heads over dModel. A head count that does not
// divide dModel falls back to the nearest one that does.
func NewMultiHead(dModel, numHeads int, parallel bool) *MultiHead {
	h := utils.ChooseValidHeads(dModel, numHeads)
	dHead := dModel / h

	m := &MultiHead{
		H:         h,
		DModel:    dModel,
		DHead:     dHead,
		Wquery:    make([]*mat.Dense, h),
		Wkey:      make([]*mat.Dense, h),
		Wvalue:    make([]*mat.Dense, h),
		Woutput:   mat.NewDense(dModel, dModel, utils.RandomArray(dModel*dModel, float64(dModel))),
		Q:         make([]*mat.Dense, h),
		K:         make([]*mat.Dense, h),
		V:         make([]*mat.Dense, h),
		Scores:    make([]*mat.Dense, h),
		A:         make([]*mat.Dense, h),
		O:         make([]*mat.Dense, h),
		maskCache: make(map[int]*mat.Dense),
		parallel:  parallel,
	}
	for i := 0; i < h; i++ {
		m.Wquery[i] = mat.NewDense(dHead, dModel, utils.RandomArray(dHead*dModel, float64(dModel)))
		m.Wkey[i] = mat.NewDense(dHead, dModel, utils.RandomArray(dHead*dModel, float64(dModel)))
		m.Wvalue[i] = mat.NewDense(dHead, dModel, utils.RandomArray(dHead*dModel, float64(dModel)))
	}
	return m
}

// Forward computes multi-head self-attention for X (dModel x T) and
// returns (dModel x T).
func (m *MultiHead) Forward(X *mat.Dense) *mat.Dense {
	d, T := X.Dims()
	if d != m.DModel {
		panic(fmt.Sprintf("multihead: input width %d, expects %d", d, m.DModel))
	}
	m.X = X
	headsCat := mat.NewDense(m.DModel, T, nil)

	rescale := 1.0 / math.Sqrt(float64(m.DHead))
	// cache mask by T
	var mask *mat.Dense
	if m.Causal {
		var ok bool
		mask, ok = m.maskCache[T]
		if !ok {
			mask = utils.CausalMask(T)
			m.maskCache[T] = mask
		}
	}

	// prepare per-head scratch resized once per T
	if m.lastT != T {
		for h := 0; h < m.H; h++ {
			m.Q[h] = mat.NewDense(m.DHead, T, nil)
			m.K[h] = mat.NewDense(m.DHead, T, nil)
			m.V[h] = mat.NewDense(m.DHead, T, nil)
			m.Scores[h] = mat.NewDense(T, T, nil)
			m.O[h] = mat.NewDense(m.DHead, T, nil)
			m.A[h] = nil // set fresh below
		}
		m.lastT = T
	}

	work := func(h int) {
		// Q,K,V
		m.Q[h].Mul(m.Wquery[h], X)
		m.K[h].Mul(m.Wkey[h], X)
		m.V[h].Mul(m.Wvalue[h], X)
		// S = (Q^T K)/sqrt(dHead)
		m.Scores[h].Mul(m.Q[h].T(), m.K[h])
		m.Scores[h].Scale(rescale, m.Scores[h])
		// A, reusing the buffer across steps with the same T
		if m.A[h] == nil {
			m.A[h] = mat.NewDense(T, T, nil)
		} else if ar, ac := m.A[h].Dims(); ar != T || ac != T {
			m.A[h] = mat.NewDense(T, T, nil)
		}
		if mask != nil {
			utils.RowSoftmaxMaskedInPlace(m.A[h], m.Scores[h], mask)
		} else {
			m.A[h].Copy(utils.RowSoftmax(m.Scores[h]))
		}
		// O = V * A^T
		m.O[h].Mul(m.V[h], m.A[h].T())
		// concat into headsCat rows
		base := h * m.DHead
		dst := headsCat.Slice(base, base+m.DHead, 0, T).(*mat.Dense)
		dst.Copy(m.O[h])
	}
	if m.parallel && m.H > 1 {
		var wg sync.WaitGroup
		wg.Add(m.H)
		for h := 0; h < m.H; h++ {
			hh := h
			go func() { defer wg.Done(); work(hh) }()
		}
		wg.Wait()
	} else {
		for h := 0; h < m.H; h++ {
			work(h)
		}
	}
	m.OCat = headsCat

	if m.H > 0 {
		rs := utils.RowSums(m.A[0])
		mn, mx := rs[0], rs[0]
		for _, v := range rs {
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		utils.Debugf("multihead: head0 A row-sum min/max = %.4f/%.4f, concat norm %.4f (T=%d)",
			mn, mx, utils.MatrixNorm(headsCat), T)
	}

	Y := utils.ToDense(utils.Dot(m.Woutput, headsCat)) // (dModel x T)
	return Y
}

// Package attention implements scaled dot-product attention over gonum
// matrices: a single inspectable head, the multi-head extension, and the
// cross-attention variant.
//
// Convention throughout (column per position): inputs are (dModel x T),
// projections left-multiply, so Q = Wq*X is (dK x T) and the weight
// matrix softmax(Q^T K / sqrt(dK)) is (T x T) with row sums of 1.
package attention

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/attnlab/attention/utils"
)

// Head is a single attention head with one set of query/key/value
// projections. After Forward (or Cross) the intermediate matrices stay
// cached on the struct so callers can print each stage of the
// computation, not just the result.
type Head struct {
	DModel int
	DK     int
	DV     int

	Wquery *mat.Dense // (dK x dModel)
	Wkey   *mat.Dense // (dK x dModel)
	Wvalue *mat.Dense // (dV x dModel)

	// cache from the last forward pass
	Q       *mat.Dense // (dK x Tq)
	K       *mat.Dense // (dK x Tk)
	V       *mat.Dense // (dV x Tk)
	Scores  *mat.Dense // (Tq x Tk) unnormalized, pre-scale
	Weights *mat.Dense // (Tq x Tk) row-stochastic
	Context *mat.Dense // (dV x Tq)

	Causal bool // mask future positions in self-attention

	maskCache map[int]*mat.Dense
}

// NewHead builds a head with fan-in uniform init, same as the rest of
// the repo's layers.
func NewHead(dModel, dK, dV int) *Head {
	return &Head{
		DModel:    dModel,
		DK:        dK,
		DV:        dV,
		Wquery:    mat.NewDense(dK, dModel, utils.RandomArray(dK*dModel, float64(dModel))),
		Wkey:      mat.NewDense(dK, dModel, utils.RandomArray(dK*dModel, float64(dModel))),
		Wvalue:    mat.NewDense(dV, dModel, utils.RandomArray(dV*dModel, float64(dModel))),
		maskCache: make(map[int]*mat.Dense),
	}
}

// Forward runs self-attention: queries, keys and values all derive from X.
// X is (dModel x T); the returned context is (dV x T).
func (h *Head) Forward(X *mat.Dense) *mat.Dense {
	return h.attend(X, X, h.Causal)
}

// attend is the shared core for self- and cross-attention.
// Causal masking only makes sense when Xq and Xkv are the same sequence.
func (h *Head) attend(Xq, Xkv *mat.Dense, causal bool) *mat.Dense {
	dq, Tq := Xq.Dims()
	dk, Tk := Xkv.Dims()
	if dq != h.DModel || dk != h.DModel {
		panic(fmt.Sprintf("attention: input width %d/%d, head expects %d", dq, dk, h.DModel))
	}

	// Projections
	h.Q = mat.NewDense(h.DK, Tq, nil)
	h.Q.Mul(h.Wquery, Xq)
	h.K = mat.NewDense(h.DK, Tk, nil)
	h.K.Mul(h.Wkey, Xkv)
	h.V = mat.NewDense(h.DV, Tk, nil)
	h.V.Mul(h.Wvalue, Xkv)

	// S[i,j] = q_i . k_j, kept pre-scale so it can be shown raw
	h.Scores = mat.NewDense(Tq, Tk, nil)
	h.Scores.Mul(h.Q.T(), h.K)

	rescale := 1.0 / math.Sqrt(float64(h.DK))
	scaled := mat.NewDense(Tq, Tk, nil)
	scaled.Scale(rescale, h.Scores)

	if causal {
		if Tq != Tk {
			panic("attention: causal mask requires one sequence")
		}
		mask, ok := h.maskCache[Tq]
		if !ok {
			mask = utils.CausalMask(Tq)
			h.maskCache[Tq] = mask
		}
		h.Weights = mat.NewDense(Tq, Tk, nil)
		utils.RowSoftmaxMaskedInPlace(h.Weights, scaled, mask)
	} else {
		h.Weights = utils.RowSoftmax(scaled)
	}

	// Z = V * A^T: column t is the weighted combination of value
	// vectors for query position t.
	h.Context = mat.NewDense(h.DV, Tq, nil)
	h.Context.Mul(h.V, h.Weights.T())

	// sanity check on weight row sums, visible with -debug
	rs := utils.RowSums(h.Weights)
	mn, mx := rs[0], rs[0]
	for _, v := range rs {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	utils.Debugf("head: weight row-sum min/max = %.4f/%.4f (Tq=%d Tk=%d)", mn, mx, Tq, Tk)

	return h.Context
}

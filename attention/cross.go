package attention

import "gonum.org/v1/gonum/mat"

// Cross runs cross-attention: queries come from Xq while keys and
// values come from Xkv, reusing the head's one set of projection
// matrices. Both inputs are (dModel x T) with independent lengths; the
// cached Weights matrix is (Tq x Tk) and the returned context is
// (dV x Tq).
//
// With Xq == Xkv this reduces to plain self-attention.
func (h *Head) Cross(Xq, Xkv *mat.Dense) *mat.Dense {
	// no causal mask: positions of Xq are not a prefix of Xkv
	return h.attend(Xq, Xkv, false)
}

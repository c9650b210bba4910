package main

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/attnlab/attention/IO"
	"github.com/attnlab/attention/attention"
	"github.com/attnlab/attention/params"
	"github.com/attnlab/attention/utils"
)

// The classic toy sentence for attention walkthroughs, six words long.
const defaultSentence = "Life is short, eat dessert first"

// Second sequence for the cross-attention stage.
const crossSentence = "Dessert is best eaten before lunch"

// RunWalkthrough executes the requested stage (or all of them in
// narrative order), printing every intermediate matrix.
func RunWalkthrough(stage, text, text2 string) error {
	X, toks, err := embedText(text)
	if err != nil {
		return err
	}

	all := stage == "all"
	ran := false

	if all || stage == "embed" {
		stageEmbed(X, toks)
		ran = true
	}

	if all || stage == "self" || stage == "causal" {
		head, err := demoHead()
		if err != nil {
			return err
		}
		if all || stage == "self" {
			stageSelf(head, X, toks)
			ran = true
		}
		if all || stage == "causal" {
			stageCausal(head, X, toks)
			ran = true
		}
	}

	if all || stage == "multi" {
		stageMulti(X)
		ran = true
	}

	if all || stage == "cross" {
		X2, toks2, err := embedText(text2)
		if err != nil {
			return err
		}
		head, err := demoHead()
		if err != nil {
			return err
		}
		stageCross(head, X, toks, X2, toks2)
		ran = true
	}

	if !ran {
		return fmt.Errorf("unknown stage %q (want embed|self|causal|multi|cross|all)", stage)
	}
	return nil
}

// embedText tokenizes with whichever vocab is loaded and gathers
// embedding columns.
func embedText(text string) (*mat.Dense, []string, error) {
	var ids []int
	var err error
	if bpeFlag {
		ids, err = IO.EncodeBPE(text)
	} else {
		ids, err = IO.EncodeWords(text)
	}
	if err != nil {
		return nil, nil, err
	}
	X, err := IO.Embed(ids)
	if err != nil {
		return nil, nil, err
	}
	var toks []string
	if bpeFlag {
		toks = IO.DecodeBPE(ids)
	} else {
		toks = make([]string, len(ids))
		for i, id := range ids {
			toks[i] = params.Vocab.IDToToken[id]
		}
	}
	return X, toks, nil
}

// demoHead returns the single head used by the self/causal/cross
// stages, honoring -weights for reproducibility across runs. An
// existing weights file that cannot be used is an error, never
// silently overwritten.
func demoHead() (*attention.Head, error) {
	cfg := params.Config
	if weightsFlag == "" {
		return attention.NewHead(cfg.DModel, cfg.DK, cfg.DV), nil
	}

	if _, err := os.Stat(weightsFlag); err == nil {
		h, err := attention.LoadHead(weightsFlag)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", weightsFlag, err)
		}
		if h.DModel != cfg.DModel || h.DK != cfg.DK || h.DV != cfg.DV {
			return nil, fmt.Errorf("%s holds a %d/%d/%d head but config wants %d/%d/%d; refusing to overwrite",
				weightsFlag, h.DModel, h.DK, h.DV, cfg.DModel, cfg.DK, cfg.DV)
		}
		return h, nil
	}

	h := attention.NewHead(cfg.DModel, cfg.DK, cfg.DV)
	if err := h.Save(weightsFlag); err != nil {
		return nil, fmt.Errorf("save weights: %w", err)
	}
	fmt.Println("Saved head weights to", weightsFlag)
	return h, nil
}

func banner(title string) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("  " + title)
	fmt.Println(strings.Repeat("=", 60))
}

func stageEmbed(X *mat.Dense, toks []string) {
	banner("Stage 1: token embeddings")
	fmt.Printf("Tokens: %v\n", toks)
	d, V := params.Emb.Dims()
	fmt.Printf("Embedding table: (%d x %d), one column per vocab entry\n", d, V)
	utils.PrintMatrix(X, "X (one column per position)")
}

func stageSelf(head *attention.Head, X *mat.Dense, toks []string) {
	banner("Stage 2: single-head self-attention")
	fmt.Printf("Projections: Wq,Wk (dK=%d x dModel=%d), Wv (dV=%d x dModel=%d)\n",
		head.DK, head.DModel, head.DV, head.DModel)

	head.Causal = false
	head.Forward(X)

	utils.PrintMatrix(head.Q, "Q = Wq X")
	utils.PrintMatrix(head.K, "K = Wk X")
	utils.PrintMatrix(head.V, "V = Wv X")
	utils.PrintMatrix(head.Scores, "S = Q^T K (unnormalized scores)")
	utils.PrintMatrix(utils.Scale(1.0/math.Sqrt(float64(head.DK)), head.Scores),
		fmt.Sprintf("S / sqrt(%d)", head.DK))
	fmt.Println("Weights = rowsoftmax of the scaled scores; every row sums to 1:")
	utils.PrintMatrix(head.Weights, "A")
	printWeightRows(head.Weights, toks, toks)
	utils.PrintMatrix(head.Context, "Z = V A^T (context vectors)")
}

func stageCausal(head *attention.Head, X *mat.Dense, toks []string) {
	banner("Stage 3: causal masking")
	fmt.Println("Scores above the diagonal are masked before softmax, so no")
	fmt.Println("position can attend to a later one.")

	head.Causal = true
	head.Forward(X)
	head.Causal = false

	utils.PrintMatrix(head.Weights, "A (causal)")
	printWeightRows(head.Weights, toks, toks)
}

func stageMulti(X *mat.Dense) {
	banner("Stage 4: multi-head attention")
	cfg := params.Config
	mh := attention.NewMultiHead(cfg.DModel, cfg.NumHeads, cfg.Parallel)
	fmt.Printf("%d heads, each in a %d-wide subspace of dModel=%d\n", mh.H, mh.DHead, mh.DModel)

	Y := mh.Forward(X)

	for h := 0; h < mh.H; h++ {
		utils.PrintMatrix(mh.A[h], fmt.Sprintf("A[head %d]", h))
	}
	utils.PrintMatrix(mh.OCat, "concat(heads)")
	utils.PrintMatrix(Y, "Y = Wo concat(heads)")
}

func stageCross(head *attention.Head, X *mat.Dense, toks []string, X2 *mat.Dense, toks2 []string) {
	banner("Stage 5: cross-attention")
	fmt.Printf("Queries from %v\n", toks2)
	fmt.Printf("Keys/values from %v (same projection matrices)\n", toks)

	head.Cross(X2, X)

	utils.PrintMatrix(head.Weights, "A (rows: query sentence, cols: key sentence)")
	printWeightRows(head.Weights, toks2, toks)
	utils.PrintMatrix(head.Context, "Z (one context column per query position)")
}

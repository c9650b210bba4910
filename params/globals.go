package params

import "gonum.org/v1/gonum/mat"

// Vocab structs and globals
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// Globals initialized on first BuildVocab / ImportVocabJSON call.
var (
	Vocab Vocabulary
	Emb   *mat.Dense // (dModel x |V|)
)

type DemoConfig struct {
	// Core attention dimensions
	DModel    int // embedding width
	DK        int // query/key width for the single-head walkthrough
	DV        int // value width for the single-head walkthrough
	NumHeads  int // heads for multi-head; dHead = DModel/NumHeads
	SeqLen    int // max positions the embedding demo will accept
	VocabSize int // |V| including special tokens

	Seed     int64 // RNG seed so every run prints the same matrices
	Parallel bool  // compute multi-head heads on separate goroutines

	Debug      bool
	DebugEvery int // print every N forward passes when Debug
}

// dK != dV on purpose: the single-head walkthrough shows that value
// width is independent of query/key width.
var Config = DemoConfig{
	DModel:    16,
	DK:        24,
	DV:        28,
	NumHeads:  4, // dHead = 16/4
	SeqLen:    64,
	VocabSize: 64,

	Seed:     123,
	Parallel: false,

	Debug:      false,
	DebugEvery: 100,
}

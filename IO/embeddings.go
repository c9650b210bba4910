package IO

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/attnlab/attention/params"
	"github.com/attnlab/attention/utils"
)

// Special tokens kept at the start of the vocab
var special = []string{"<pad>", "<bos>", "<eos>", "<unk>"}

// BuildVocabAndEmb builds a word-level vocabulary from text and a fresh
// randomly initialized embedding table, storing both in params. Returns
// the number of distinct words seen.
func BuildVocabAndEmb(text string, dModel, vocabSize int) (int, error) {
	toks := TokenizeWords(text)
	if len(toks) == 0 {
		return 0, errors.New("no tokens in input text")
	}
	counts := make(map[string]int, len(toks))
	for _, t := range toks {
		counts[t]++
	}
	params.Vocab = buildFixedVocabFromCounts(counts, vocabSize)
	params.Emb = initEmbeddings(dModel, params.Vocab)
	return len(counts), nil
}

// InitEmbForVocab (re)initializes the embedding table for whatever
// vocab is currently loaded (word-level or BPE).
func InitEmbForVocab(dModel int) error {
	if len(params.Vocab.IDToToken) == 0 {
		return errors.New("vocab not initialized")
	}
	params.Emb = initEmbeddings(dModel, params.Vocab)
	return nil
}

func VocabLookup(v params.Vocabulary, tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return v.TokenToID["<unk>"]
}

// EncodeWords maps text to token ids with the current vocab.
// Unseen words map to <unk>.
func EncodeWords(text string) ([]int, error) {
	if params.Vocab.TokenToID == nil {
		return nil, errors.New("vocab not initialized")
	}
	toks := TokenizeWords(text)
	ids := make([]int, len(toks))
	for i, t := range toks {
		ids[i] = VocabLookup(params.Vocab, t)
	}
	return ids, nil
}

// Embed gathers embedding columns for a token-id sequence.
// Result is (dModel x T), column per position.
func Embed(ids []int) (*mat.Dense, error) {
	if params.Emb == nil {
		return nil, errors.New("embeddings not initialized")
	}
	if len(ids) == 0 {
		return nil, errors.New("empty id sequence")
	}
	if len(ids) > params.Config.SeqLen {
		return nil, fmt.Errorf("sequence length %d exceeds SeqLen %d", len(ids), params.Config.SeqLen)
	}
	d, V := params.Emb.Dims()
	out := mat.NewDense(d, len(ids), nil)
	for t, id := range ids {
		if id < 0 || id >= V {
			return nil, fmt.Errorf("token id %d out of range [0,%d)", id, V)
		}
		for i := 0; i < d; i++ {
			out.Set(i, t, params.Emb.At(i, id))
		}
	}
	return out, nil
}

// Initialize embeddings with small gaussian values.
// Shape: (dModel x |V|)
func initEmbeddings(dModel int, v params.Vocabulary) *mat.Dense {
	data := utils.NormalArray(dModel*len(v.IDToToken), float64(dModel))
	return mat.NewDense(dModel, len(v.IDToToken), data)
}

// Helper for BuildVocabAndEmb: specials first, then words by frequency,
// padded out to size.
func buildFixedVocabFromCounts(cnt map[string]int, size int) params.Vocabulary {
	if size < len(special) {
		panic("vocab size must be >= number of special tokens")
	}
	type kv struct {
		k string
		v int
	}
	arr := make([]kv, 0, len(cnt))
	for k, v := range cnt {
		arr = append(arr, kv{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].v == arr[j].v {
			return arr[i].k < arr[j].k
		}
		return arr[i].v > arr[j].v
	})

	idToToken := append([]string{}, special...)
	for _, p := range arr {
		if len(idToToken) >= size {
			break
		}
		if p.k == "" {
			continue
		}
		skip := false
		for _, s := range special {
			if p.k == s {
				skip = true
				break
			}
		}
		if !skip {
			idToToken = append(idToToken, p.k)
		}
	}
	for len(idToToken) < size {
		idToToken = append(idToToken, fmt.Sprintf("<pad%d>", len(idToToken)))
	}
	tok2id := map[string]int{}
	for i, t := range idToToken {
		tok2id[t] = i
	}
	return params.Vocabulary{TokenToID: tok2id, IDToToken: idToToken}
}

func ExportVocabJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	data := map[string]any{
		"TokenToID": params.Vocab.TokenToID,
		"IDToToken": params.Vocab.IDToToken,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func ImportVocabJSON(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var data struct {
		TokenToID map[string]int
		IDToToken []string
	}
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if len(data.IDToToken) == 0 {
		return fmt.Errorf("%s: empty vocab", path)
	}
	params.Vocab = params.Vocabulary{TokenToID: data.TokenToID, IDToToken: data.IDToToken}
	return nil
}

package IO

import (
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/models"
	"github.com/sugarme/tokenizer/normalizers"
	"github.com/sugarme/tokenizer/pretokenizers"
	"github.com/sugarme/tokenizer/processors"
	"github.com/sugarme/tokenizer/trainers"

	"github.com/attnlab/attention/params"
)

// Subword path: instead of the word-level vocab, tokenize demo text
// with a BPE tokenizer trained on a corpus file. Useful to show that
// the attention math does not care what the tokens are.
var bpeTokenizer *tk.Tokenizer

// TrainOrLoadBPE loads tokPath if it exists, otherwise trains a BPE
// tokenizer on corpusPath and saves it there. Either way it fills
// params.Vocab from the tokenizer's vocab.
func TrainOrLoadBPE(corpusPath, tokPath string, vocabSize int) error {
	if fileExists(tokPath) {
		t, err := tk.FromFile(tokPath)
		if err != nil {
			return err
		}
		bpeTokenizer = t
		return fillParamsVocabFromTokenizer()
	}

	bpe := models.NewBPE()
	t := tk.NewTokenizer(bpe)

	// Normalize to NFKC lower for English
	t.WithNormalizer(normalizers.NewSequence(
		normalizers.NewNFKC(),
		normalizers.NewLowercase(),
	))
	t.WithPreTokenizer(pretokenizers.NewWhitespaceSplit())

	proc := processors.NewTemplateProcessing(
		"<bos> $A <eos>",
		"$A",
		map[string]int{
			"<bos>": 1,
			"<eos>": 2,
		},
	)
	t.WithPostProcessor(proc)

	tr := trainers.NewBpeTrainer()
	tr.VocabSize = vocabSize
	tr.SpecialTokens = []string{"<pad>", "<bos>", "<eos>", "<unk>"}

	if err := t.Train(tr, []string{corpusPath}); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(tokPath), 0o755); err != nil {
		return err
	}
	if err := t.Save(tokPath); err != nil {
		return err
	}
	bpeTokenizer = t
	return fillParamsVocabFromTokenizer()
}

func fillParamsVocabFromTokenizer() error {
	if bpeTokenizer == nil {
		return fmt.Errorf("tokenizer not initialized")
	}
	vocab := bpeTokenizer.GetVocab(true)
	id2tok := make([]string, len(vocab))
	tok2id := make(map[string]int, len(vocab))
	for tok, id := range vocab {
		tok2id[tok] = id
		id2tok[id] = tok
	}
	params.Vocab = params.Vocabulary{TokenToID: tok2id, IDToToken: id2tok}
	return nil
}

// EncodeBPE encodes raw text into token IDs.
func EncodeBPE(text string) ([]int, error) {
	if bpeTokenizer == nil {
		return nil, fmt.Errorf("tokenizer not initialized")
	}
	enc, err := bpeTokenizer.EncodeSingle(text)
	if err != nil {
		return nil, err
	}
	ids := enc.Ids
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out, nil
}

// DecodeBPE maps ids back to their token strings for printing.
func DecodeBPE(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if id >= 0 && id < len(params.Vocab.IDToToken) {
			out[i] = params.Vocab.IDToToken[id]
		} else {
			out[i] = "<unk>"
		}
	}
	return out
}

// fileExists true if path exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

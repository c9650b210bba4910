package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/attnlab/attention/IO"
	"github.com/attnlab/attention/attention"
	"github.com/attnlab/attention/params"
	"github.com/attnlab/attention/utils"
)

// ChatCLI reads sentences from stdin and prints their self-attention
// maps. The head's projections are reused across sentences, and the
// embedding table is rebuilt from the configured seed for each one, so
// typing the same sentence twice gives the same map. Type 'exit' to
// quit.
func ChatCLI() {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Attention explorer. Type a sentence, or 'exit' to quit.")

	cfg := params.Config
	head := attention.NewHead(cfg.DModel, cfg.DK, cfg.DV)

	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "exit" {
			break
		}
		if input == "" {
			continue
		}

		weights, toks, err := sentenceMap(head, input)
		if err != nil {
			fmt.Println("Error:", err)
			continue
		}
		utils.PrintMatrix(weights, "A")
		printWeightRows(weights, toks, toks)
	}
}

// sentenceMap builds vocab and embeddings for one sentence and runs it
// through the head. The embedding RNG is reseeded first so identical
// sentences get identical embeddings, hence identical maps.
func sentenceMap(head *attention.Head, input string) (*mat.Dense, []string, error) {
	cfg := params.Config
	utils.Reseed(cfg.Seed)
	if _, err := IO.BuildVocabAndEmb(input, cfg.DModel, cfg.VocabSize); err != nil {
		return nil, nil, err
	}
	ids, err := IO.EncodeWords(input)
	if err != nil {
		return nil, nil, err
	}
	X, err := IO.Embed(ids)
	if err != nil {
		return nil, nil, err
	}
	toks := make([]string, len(ids))
	for i, id := range ids {
		toks[i] = params.Vocab.IDToToken[id]
	}
	head.Forward(X)
	return head.Weights, toks, nil
}

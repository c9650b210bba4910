package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/attnlab/attention/IO"
	"github.com/attnlab/attention/params"
	"github.com/attnlab/attention/utils"
)

var (
	stageFlag    string
	textFlag     string
	text2Flag    string
	exportFlag   string
	weightsFlag  string
	cliFlag      bool
	bpeFlag      bool
	corpusFlag   string
	tokFileFlag  string
	seedFlag     int64
	headsFlag    int
	parallelFlag bool
	debugFlag    bool
)

func init() {
	flag.StringVar(&stageFlag, "stage", "all", "Walkthrough stage: embed|self|causal|multi|cross|all")
	flag.StringVar(&textFlag, "text", defaultSentence, "Demo sentence")
	flag.StringVar(&text2Flag, "text2", crossSentence, "Second sentence (query side of the cross-attention stage)")
	flag.StringVar(&exportFlag, "export", "", "Write vocab JSON to this path and exit")
	flag.StringVar(&weightsFlag, "weights", "", "Gob file for single-head weights; loaded if present, saved otherwise")
	flag.BoolVar(&cliFlag, "cli", false, "Interactive mode: type sentences, see their attention maps")
	flag.BoolVar(&bpeFlag, "bpe", false, "Tokenize with a BPE tokenizer instead of the word vocab")
	flag.StringVar(&corpusFlag, "corpus", "", "Corpus file for BPE training (with -bpe)")
	flag.StringVar(&tokFileFlag, "tokfile", "tokenizer.json", "Where to save/load the trained BPE tokenizer (with -bpe)")
	flag.Int64Var(&seedFlag, "seed", params.Config.Seed, "RNG seed for weight and embedding init")
	flag.IntVar(&headsFlag, "heads", params.Config.NumHeads, "Head count for the multi-head stage")
	flag.BoolVar(&parallelFlag, "parallel", params.Config.Parallel, "Run multi-head heads on separate goroutines")
	flag.BoolVar(&debugFlag, "debug", false, "Print row-sum diagnostics")
}

func main() {
	flag.Parse()

	params.Config.Seed = seedFlag
	params.Config.NumHeads = headsFlag
	params.Config.Parallel = parallelFlag
	params.Config.Debug = debugFlag
	utils.Reseed(seedFlag)

	if cliFlag {
		ChatCLI()
		return
	}

	// The vocab covers both sentences so the cross stage can share one
	// embedding table.
	if bpeFlag {
		if corpusFlag == "" {
			fmt.Fprintln(os.Stderr, "-bpe requires -corpus")
			os.Exit(1)
		}
		if err := IO.TrainOrLoadBPE(corpusFlag, tokFileFlag, params.Config.VocabSize); err != nil {
			fmt.Fprintf(os.Stderr, "BPE setup failed: %v\n", err)
			os.Exit(1)
		}
		// BPE supplies the vocab; the embedding table is still ours
		if err := IO.InitEmbForVocab(params.Config.DModel); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	} else {
		if _, err := IO.BuildVocabAndEmb(textFlag+" "+text2Flag,
			params.Config.DModel, params.Config.VocabSize); err != nil {
			fmt.Fprintf(os.Stderr, "vocab build failed: %v\n", err)
			os.Exit(1)
		}
	}

	if exportFlag != "" {
		if err := IO.ExportVocabJSON(exportFlag); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Exported vocab to", exportFlag)
		return
	}

	if err := RunWalkthrough(stageFlag, textFlag, text2Flag); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

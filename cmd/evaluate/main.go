// evaluate settles stored predictions against final scores and feeds the
// results back into the history store.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/evaluate"
	"github.com/phenomenon0/puntaiq/pkg/history"
	"github.com/phenomenon0/puntaiq/pkg/predict"
	"github.com/phenomenon0/puntaiq/pkg/report"
	"github.com/phenomenon0/puntaiq/pkg/sink"
)

var (
	scoresFile  = flag.String("scores", "", "Final scores CSV (match_id, sport, home_score, away_score)")
	outputDir   = flag.String("dir", "", "Output directory written by predictd's file sink")
	predsFile   = flag.String("predictions", "", "JSON array of predictions (instead of -dir)")
	historyPath = flag.String("history", "", "Badger history directory to record results into")
	outputFile  = flag.String("output", "", "Write the report as JSON")
	verbose     = flag.Bool("verbose", false, "Include every settlement in the JSON output")
)

func main() {
	flag.Parse()

	if *scoresFile == "" || (*outputDir == "" && *predsFile == "") {
		flag.Usage()
		os.Exit(2)
	}

	scores, err := evaluate.LoadScoresFile(*scoresFile)
	if err != nil {
		log.Fatalf("Failed to load scores: %v", err)
	}

	preds, accs, err := loadInputs()
	if err != nil {
		log.Fatalf("Failed to load predictions: %v", err)
	}
	log.Printf("Evaluating %d predictions and %d accumulators against %d scores", len(preds), len(accs), len(scores))

	rep := evaluate.Evaluate(preds, scores)
	if len(accs) > 0 {
		rep.AddAccumulators(accs, scores)
	}
	fmt.Println(report.Evaluation(rep))

	if *historyPath != "" {
		store, err := history.Open(history.Options{Path: *historyPath})
		if err != nil {
			log.Fatalf("Failed to open history: %v", err)
		}
		results := rep.HistoryResults()
		if err := store.Record(results...); err != nil {
			store.Close()
			log.Fatalf("Failed to record history: %v", err)
		}
		store.Close()
		log.Printf("Recorded %d results into %s", len(results), *historyPath)
	}

	if *outputFile != "" {
		if !*verbose {
			rep.Settlements = nil
		}
		if err := exportJSON(rep, *outputFile); err != nil {
			log.Printf("Failed to export report: %v", err)
		} else {
			log.Printf("Report exported to: %s", *outputFile)
		}
	}
}

func loadInputs() ([]predict.Prediction, []accumulator.Accumulator, error) {
	if *predsFile != "" {
		preds, err := evaluate.LoadPredictions(*predsFile)
		return preds, nil, err
	}

	store, err := sink.NewFileStore(*outputDir)
	if err != nil {
		return nil, nil, err
	}
	var preds []predict.Prediction
	for _, sport := range []core.Sport{core.SportFootball, core.SportBasketball} {
		p, err := store.LoadPredictions(sport)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		preds = append(preds, p...)
	}

	buckets, err := store.LoadAccumulators()
	if errors.Is(err, os.ErrNotExist) {
		return preds, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return preds, distinct(buckets), nil
}

// distinct flattens the catalog buckets, keeping each accumulator once.
func distinct(buckets map[string][]accumulator.Accumulator) []accumulator.Accumulator {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var out []accumulator.Accumulator
	for _, name := range names {
		for _, acc := range buckets[name] {
			if seen[acc.ID] {
				continue
			}
			seen[acc.ID] = true
			out = append(out, acc)
		}
	}
	return out
}

func exportJSON(rep *evaluate.Report, filename string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

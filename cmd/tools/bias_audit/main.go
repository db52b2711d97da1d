package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/david/subsidy-matcher/internal/audit"
	"github.com/david/subsidy-matcher/internal/db"
	"github.com/david/subsidy-matcher/internal/matching"
)

func main() {
	seed := flag.Int64("seed", 1, "generator seed; same seed reproduces the same profiles")
	profiles := flag.Int("profiles", 120, "number of synthetic profiles")
	threshold := flag.Float64("threshold", audit.DefaultThreshold, "deviation (rate points) that triggers a finding")
	minScore := flag.Int("min-score", 40, "score at which a result counts as a match")
	limit := flag.Int("limit", 10, "shortlist size per run")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx, "")
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	rules, err := matching.LoadRules(os.Getenv("MATCH_RULES_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	// Refinement stays off: the audit measures the deterministic rules.
	pipeline := matching.NewPipeline(store, nil, rules, matching.Config{}, zap.NewNop())

	auditor := audit.NewAuditor(pipeline, zap.NewNop())
	auditor.Threshold = *threshold
	auditor.MatchScore = *minScore
	auditor.Limit = *limit

	report, err := auditor.Run(ctx, *seed, *profiles)
	if err != nil {
		log.Fatal(err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatal(err)
		}
		return
	}

	fmt.Printf("Seed %d, %d profiles, overall match rate %.1f%%\n\n", report.Seed, report.Profiles, report.OverallRate*100)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Dimension", "Value", "Runs", "Matched", "Rate"})
	for _, stat := range report.Stats {
		t.AppendRow(table.Row{stat.Dimension, stat.Value, stat.Runs, stat.Matched, fmt.Sprintf("%.1f%%", stat.Rate*100)})
	}
	t.Render()

	if len(report.Findings) == 0 {
		fmt.Println("\nNo findings: all dimensions within threshold.")
		return
	}

	fmt.Println()
	f := table.NewWriter()
	f.SetOutputMirror(os.Stdout)
	f.AppendHeader(table.Row{"Severity", "Dimension", "Value", "Rate", "Deviation"})
	for _, finding := range report.Findings {
		f.AppendRow(table.Row{
			string(finding.Severity), finding.Dimension, finding.Value,
			fmt.Sprintf("%.1f%%", finding.Rate*100),
			fmt.Sprintf("%+.1f%%", finding.Deviation*100),
		})
	}
	f.Render()

	// Non-zero exit when a high-severity skew shows up, so CI can gate on it.
	for _, finding := range report.Findings {
		if finding.Severity == audit.SeverityHigh {
			os.Exit(2)
		}
	}
}

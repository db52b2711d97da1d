package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/david/subsidy-matcher/internal/ai"
	"github.com/david/subsidy-matcher/internal/db"
	"github.com/david/subsidy-matcher/internal/matching"
	"github.com/david/subsidy-matcher/internal/models"
)

// match_probe runs one profile through the live pipeline and prints the
// shortlist. Handy for checking rule changes against a real catalog without
// going through the HTTP surface.
func main() {
	profilePath := flag.String("profile", "", "path to a company profile JSON file (required)")
	limit := flag.Int("limit", 10, "shortlist size")
	useAI := flag.Bool("ai", false, "call the provider (needs AI_API_KEY)")
	flag.Parse()

	if *profilePath == "" {
		flag.Usage()
		os.Exit(1)
	}

	raw, err := os.ReadFile(*profilePath)
	if err != nil {
		log.Fatal(err)
	}
	var profile models.CompanyProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		log.Fatalf("Invalid profile file: %v", err)
	}

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

	var refiner matching.Refiner
	if *useAI {
		apiKey := os.Getenv("AI_API_KEY")
		if apiKey == "" {
			log.Fatal("-ai requires AI_API_KEY")
		}
		client := ai.NewClient(os.Getenv("AI_BASE_URL"), apiKey, os.Getenv("AI_MODEL"), 15*time.Second)
		limiter := ai.NewLimiter(60, time.Second, 2*time.Second)
		refiner = ai.NewRefiner(client, limiter, zap.NewNop(), 15*time.Second, 0)
	}

	pipeline := matching.NewPipeline(store, refiner, rules, matching.Config{AIEnabled: *useAI}, zap.NewNop())

	resp, err := pipeline.ComputeMatches(ctx, profile, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Subsidy", "Title", "Score", "P(success)", "AI", "Reasons"})
	for i, m := range resp.Matches {
		title := m.Title
		if len(title) > 45 {
			title = title[:42] + "..."
		}
		t.AppendRow(table.Row{
			i + 1, m.SubsidyID, title, m.Score,
			fmt.Sprintf("%.2f", m.SuccessProbability),
			m.AIRefined,
			strings.Join(m.Reasons, "; "),
		})
	}
	t.Render()

	stats := resp.PipelineStats
	fmt.Printf("\nFetched %d, pre-scored %d, ai_evaluated=%v", stats.CandidatesFetched, stats.PreScoredCount, stats.AIEvaluated)
	if stats.FallbackReason != "" {
		fmt.Printf(" (fallback: %s)", stats.FallbackReason)
	}
	fmt.Printf("\nTokens in/out: %d/%d, took %dms\n", resp.TokensUsed.Input, resp.TokensUsed.Output, resp.ProcessingTimeMs)
}

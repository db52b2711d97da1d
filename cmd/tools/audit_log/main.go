package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/subsidy-matcher/internal/db"
)

// Prints the most recent match audits, newest first. Reads the same
// compliance log the admin API serves, straight from Postgres, for quick
// checks on a box with database access.
func main() {
	limit := flag.Int("limit", 20, "number of audits to show")
	asJSON := flag.Bool("json", false, "print raw JSON instead of a table")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx, "")
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	audits, err := store.RecentAudits(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(audits); err != nil {
			log.Fatal(err)
		}
		return
	}

	if len(audits) == 0 {
		fmt.Println("No match audits recorded yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Company", "Refined", "Fallback", "Took", "When"})

	for _, a := range audits {
		refined := "no"
		if a.AIEvaluated {
			refined = "yes"
		}
		fallback := a.FallbackReason
		if fallback == "" {
			fallback = "-"
		}
		t.AppendRow(table.Row{
			a.CompanyID, refined, fallback,
			fmt.Sprintf("%dms", a.TookMs),
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()

	var degraded int
	for _, a := range audits {
		if !a.AIEvaluated {
			degraded++
		}
	}
	fmt.Printf("\n%d of %d requests served from the pre-scored fallback (window: last %s)\n",
		degraded, len(audits), time.Since(audits[len(audits)-1].CreatedAt).Round(time.Second))
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/david/subsidy-matcher/internal/catalog"
	"github.com/david/subsidy-matcher/internal/db"
)

// seed_catalog loads a provider feed file into the subsidies table. The
// HTTP import endpoint does the same thing; this is the offline path for
// initial loads and fixtures. Cached reads age out on their own TTL.
func main() {
	file := flag.String("file", "", "path to a feed JSON file (array of entries, required)")
	prune := flag.Bool("prune", false, "deactivate catalog rows missing from the feed")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal(err)
	}
	var entries []catalog.RawSubsidy
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Fatalf("Invalid feed file: %v", err)
	}
	if len(entries) == 0 {
		log.Fatal("Feed file contains no entries")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, "")
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, nil); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	store := db.NewStore(pool)

	imported := 0
	skipped := 0
	var keep []string
	for _, entry := range entries {
		candidate, err := catalog.Normalize(entry)
		if err != nil {
			skipped++
			log.Printf("Skipping entry: %v", err)
			continue
		}
		if err := store.UpsertSubsidy(ctx, candidate); err != nil {
			log.Fatal(err)
		}
		imported++
		keep = append(keep, candidate.ID)
	}

	var deactivated int64
	if *prune && len(keep) > 0 {
		deactivated, err = store.DeactivateExcept(ctx, keep)
		if err != nil {
			log.Fatal(err)
		}
	}

	fmt.Printf("Imported %d, skipped %d, deactivated %d\n", imported, skipped, deactivated)
}

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/subsidy-matcher/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListParams filters the catalog listing used by the admin tools. The match
// pipeline itself always reads the full active set via FetchActive.
type ListParams struct {
	Query      string
	Region     string
	Sector     string
	Funder     string
	ActiveOnly bool
	MinAmount  float64
	Limit      int
	Offset     int
}

type ListResult struct {
	Subsidies []models.SubsidyCandidate `json:"subsidies"`
	Total     int                       `json:"total"`
	Limit     int                       `json:"limit"`
	Offset    int                       `json:"offset"`
}

const selectCols = `id, title, description, regions, sector, universal_sector,
	amount_min, amount_max, currency, entity_types, funder, external_url,
	active, updated_at`

func scanSubsidy(scan func(dest ...interface{}) error) (models.SubsidyCandidate, error) {
	var c models.SubsidyCandidate
	err := scan(
		&c.ID, &c.Title, &c.Description, &c.Regions, &c.Sector, &c.UniversalSector,
		&c.AmountMin, &c.AmountMax, &c.Currency, &c.EntityTypes, &c.Funder, &c.ExternalURL,
		&c.Active, &c.UpdatedAt,
	)
	return c, err
}

// FetchActive returns every active catalog row in stable id order. The
// pipeline scores all of them on each request, so there is no pagination.
func (s *Store) FetchActive(ctx context.Context) ([]models.SubsidyCandidate, error) {
	sql := fmt.Sprintf("SELECT %s FROM subsidies WHERE active = TRUE ORDER BY id", selectCols)
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []models.SubsidyCandidate
	for rows.Next() {
		c, err := scanSubsidy(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

func (s *Store) ListSubsidies(ctx context.Context, params ListParams) (*ListResult, error) {
	where, args, argIdx := buildListWhere(params)

	var total int
	countSQL := "SELECT COUNT(*) FROM subsidies " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM subsidies %s ORDER BY updated_at DESC, id ASC", selectCols, where)
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var subsidies []models.SubsidyCandidate
	for rows.Next() {
		c, err := scanSubsidy(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		subsidies = append(subsidies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	if subsidies == nil {
		subsidies = []models.SubsidyCandidate{}
	}

	return &ListResult{
		Subsidies: subsidies,
		Total:     total,
		Limit:     params.Limit,
		Offset:    params.Offset,
	}, nil
}

// buildListWhere assembles the filter clause. A region filter keeps schemes
// restricted to that region plus nationwide ones, which is what "available
// in X" means for a subsidy.
func buildListWhere(params ListParams) (string, []interface{}, int) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.ActiveOnly {
		where += " AND active = TRUE"
	}
	if params.Query != "" {
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Query)
		argIdx++
	}
	if params.Region != "" {
		where += fmt.Sprintf(" AND (cardinality(regions) = 0 OR $%d ILIKE ANY(regions))", argIdx)
		args = append(args, params.Region)
		argIdx++
	}
	if params.Sector != "" {
		where += fmt.Sprintf(" AND sector = $%d", argIdx)
		args = append(args, params.Sector)
		argIdx++
	}
	if params.Funder != "" {
		where += fmt.Sprintf(" AND funder = $%d", argIdx)
		args = append(args, params.Funder)
		argIdx++
	}
	if params.MinAmount > 0 {
		where += fmt.Sprintf(" AND amount_max >= $%d", argIdx)
		args = append(args, params.MinAmount)
		argIdx++
	}

	return where, args, argIdx
}

func (s *Store) GetSubsidy(ctx context.Context, id string) (*models.SubsidyCandidate, error) {
	sql := fmt.Sprintf("SELECT %s FROM subsidies WHERE id = $1", selectCols)
	row := s.pool.QueryRow(ctx, sql, id)

	c, err := scanSubsidy(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}
	return &c, nil
}

// UpsertSubsidy writes one catalog row, keyed by the provider id. Imports
// run it for every feed entry; updated_at always moves so staleness checks
// stay honest.
func (s *Store) UpsertSubsidy(ctx context.Context, c models.SubsidyCandidate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subsidies (id, title, description, regions, sector, universal_sector,
			amount_min, amount_max, currency, entity_types, funder, external_url, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			regions = EXCLUDED.regions,
			sector = EXCLUDED.sector,
			universal_sector = EXCLUDED.universal_sector,
			amount_min = EXCLUDED.amount_min,
			amount_max = EXCLUDED.amount_max,
			currency = EXCLUDED.currency,
			entity_types = EXCLUDED.entity_types,
			funder = EXCLUDED.funder,
			external_url = EXCLUDED.external_url,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, c.ID, c.Title, c.Description, ensureSlice(c.Regions), c.Sector, c.UniversalSector,
		c.AmountMin, c.AmountMax, c.Currency, ensureSlice(c.EntityTypes), c.Funder, c.ExternalURL,
		c.Active)
	if err != nil {
		return fmt.Errorf("upsert failed for %s: %w", c.ID, err)
	}
	return nil
}

// DeactivateExcept retires every active row whose id is not in keep. Used
// after a full feed import so schemes dropped by the provider stop matching.
func (s *Store) DeactivateExcept(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, fmt.Errorf("refusing to deactivate the whole catalog")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE subsidies SET active = FALSE, updated_at = NOW()
		WHERE active = TRUE AND NOT (id = ANY($1))
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("deactivate failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordMatch persists one audit row. Implements the pipeline's compliance
// sink; the caller already treats errors as non-fatal.
func (s *Store) RecordMatch(ctx context.Context, rec models.MatchAudit) error {
	profileJSON, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	matchesJSON, err := json.Marshal(rec.Matches)
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO match_audits (id, company_id, profile, matches,
			candidates_fetched, pre_scored_count, ai_evaluated, fallback_reason,
			input_tokens, output_tokens, took_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.New().String(), rec.Profile.ID, profileJSON, matchesJSON,
		rec.Stats.CandidatesFetched, rec.Stats.PreScoredCount, rec.Stats.AIEvaluated,
		rec.Stats.FallbackReason, rec.Tokens.Input, rec.Tokens.Output, rec.TookMs)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// AuditSummary is one line of the recent-activity view.
type AuditSummary struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	AIEvaluated    bool      `json:"ai_evaluated"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	TookMs         int64     `json:"took_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Store) RecentAudits(ctx context.Context, limit int) ([]AuditSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, ai_evaluated, fallback_reason, took_ms, created_at
		FROM match_audits ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []AuditSummary
	for rows.Next() {
		var a AuditSummary
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.AIEvaluated, &a.FallbackReason, &a.TookMs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM subsidies").Scan(&total)
	stats["total"] = total

	var active int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM subsidies WHERE active = TRUE").Scan(&active)
	stats["active"] = active

	var national int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM subsidies WHERE active = TRUE AND cardinality(regions) = 0").Scan(&national)
	stats["national"] = national

	var universal int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM subsidies WHERE active = TRUE AND universal_sector = TRUE").Scan(&universal)
	stats["universal_sector"] = universal

	sectorCounts := map[string]int{}
	rows, err := s.pool.Query(ctx, "SELECT sector, COUNT(*) FROM subsidies WHERE active = TRUE GROUP BY sector")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var sector string
			var count int
			if scanErr := rows.Scan(&sector, &count); scanErr == nil {
				if sector == "" {
					sector = "(none)"
				}
				sectorCounts[sector] = count
			}
		}
	}
	stats["sector_counts"] = sectorCounts

	var audits int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM match_audits").Scan(&audits)
	stats["audits"] = audits

	fallbackCounts := map[string]int{}
	rows, err = s.pool.Query(ctx, `
		SELECT fallback_reason, COUNT(*) FROM match_audits
		WHERE fallback_reason <> '' GROUP BY fallback_reason
	`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var reason string
			var count int
			if scanErr := rows.Scan(&reason, &count); scanErr == nil {
				fallbackCounts[reason] = count
			}
		}
	}
	stats["fallback_counts"] = fallbackCounts

	return stats, nil
}

// ensureSlice keeps TEXT[] columns non-null; pgx writes nil slices as NULL.
func ensureSlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// SectorsInCatalog lists distinct non-empty sector labels, for the seeded
// bias audit and the verification tool.
func (s *Store) SectorsInCatalog(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT sector FROM subsidies WHERE active = TRUE AND sector <> '' ORDER BY sector")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sectors []string
	for rows.Next() {
		var sector string
		if err := rows.Scan(&sector); err == nil {
			sector = strings.TrimSpace(sector)
			if sector != "" {
				sectors = append(sectors, sector)
			}
		}
	}
	return sectors, rows.Err()
}

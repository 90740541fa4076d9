package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ehmo/sovi/internal/domain"
)

func scanNiche(s scanner) (domain.Niche, error) {
	var n domain.Niche
	err := s.Scan(&n.ID, &n.Slug, &n.Name, &n.Tier, &n.Status)
	return n, err
}

func (d *DB) GetNiche(ctx context.Context, id string) (domain.Niche, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, slug, name, tier, status FROM niches WHERE id = $1`, id)
	n, err := scanNiche(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Niche{}, domain.ErrNicheNotFound
	}
	if err != nil {
		return domain.Niche{}, fmt.Errorf("get niche: %w", err)
	}
	return n, nil
}

func (d *DB) ListActiveNiches(ctx context.Context) ([]domain.Niche, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, slug, name, tier, status FROM niches WHERE status = 'active' ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list active niches: %w", err)
	}
	defer rows.Close()

	var out []domain.Niche
	for rows.Next() {
		n, err := scanNiche(rows)
		if err != nil {
			return nil, fmt.Errorf("scan niche: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NicheAccountCount pairs a niche with its live (non-deleted) account
// count on one platform, for the creation fallback task (§4.1).
type NicheAccountCount struct {
	Niche    domain.Niche
	Platform domain.Platform
	Count    int
}

// LeastPopulatedNiche returns the (platform, niche) pair among active
// niches with the fewest live accounts, ties broken alphabetically by
// niche slug then platform (§4.1, §4.7).
func (d *DB) LeastPopulatedNiche(ctx context.Context, platforms []domain.Platform) (NicheAccountCount, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT n.id, n.slug, n.name, n.tier, n.status, p.platform,
		       count(a.id) FILTER (WHERE a.id IS NOT NULL AND a.deleted_at IS NULL)
		FROM niches n
		CROSS JOIN unnest($1::text[]) AS p(platform)
		LEFT JOIN accounts a ON a.niche_id = n.id AND a.platform = p.platform
		WHERE n.status = 'active'
		GROUP BY n.id, p.platform
		ORDER BY count(a.id) FILTER (WHERE a.id IS NOT NULL AND a.deleted_at IS NULL) ASC, n.slug ASC, p.platform ASC
		LIMIT 1`, platformStrings(platforms))
	if err != nil {
		return NicheAccountCount{}, fmt.Errorf("least populated niche: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return NicheAccountCount{}, domain.ErrNoEligibleNiche
	}
	var nac NicheAccountCount
	if err := rows.Scan(&nac.Niche.ID, &nac.Niche.Slug, &nac.Niche.Name, &nac.Niche.Tier,
		&nac.Niche.Status, &nac.Platform, &nac.Count); err != nil {
		return NicheAccountCount{}, fmt.Errorf("scan least populated niche: %w", err)
	}
	return nac, rows.Err()
}

func platformStrings(platforms []domain.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

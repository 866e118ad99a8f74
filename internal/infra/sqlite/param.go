package sqlite

import (
	"database/sql"
	"errors"

	"github.com/janus-network/janus/internal/domain"
)

// ─── Parameter Registry ─────────────────────────────────────────────────────

const paramColumns = `name, value, default_value, type, description,
	min_value, max_value, voteable, super_majority, frozen_until, rollback_count, updated_at`

// SeedParameter inserts a parameter if it does not exist yet. Existing
// rows keep their current value across restarts.
func (t *Tx) SeedParameter(p *domain.Parameter) error {
	_, err := t.Exec(
		`INSERT INTO parameters (`+paramColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		p.Name, p.Value, p.DefaultValue, string(p.Type), p.Description,
		nullableFloat(p.MinValue), nullableFloat(p.MaxValue),
		p.Voteable, p.SuperMajority, nullableUnix(p.FrozenUntil), p.RollbackCount,
		p.UpdatedAt.Unix(),
	)
	return err
}

// GetParameter loads a parameter by name.
func (t *Tx) GetParameter(name string) (*domain.Parameter, error) {
	row := t.QueryRow(`SELECT `+paramColumns+` FROM parameters WHERE name = ?`, name)
	return scanParameter(row)
}

// ListParameters returns all registered parameters ordered by name.
func (t *Tx) ListParameters() ([]domain.Parameter, error) {
	rows, err := t.Query(`SELECT ` + paramColumns + ` FROM parameters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []domain.Parameter
	for rows.Next() {
		p, err := scanParameter(rows)
		if err != nil {
			return nil, err
		}
		params = append(params, *p)
	}
	return params, rows.Err()
}

// SetParameterValue writes a parameter's current value. Only action
// execution and rollback reversal call this.
func (t *Tx) SetParameterValue(name, value string, updatedAt int64) error {
	res, err := t.Exec(
		`UPDATE parameters SET value = ?, updated_at = ? WHERE name = ?`,
		value, updatedAt, name,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrUnknownParameter)
}

// RecordParameterRollback bumps the rollback counter and returns the new
// count, optionally freezing the parameter until the given time.
func (t *Tx) RecordParameterRollback(name string, frozenUntil sql.NullInt64, updatedAt int64) (int, error) {
	res, err := t.Exec(
		`UPDATE parameters SET rollback_count = rollback_count + 1,
		        frozen_until = COALESCE(?, frozen_until), updated_at = ?
		 WHERE name = ?`,
		frozenUntil, updatedAt, name,
	)
	if err != nil {
		return 0, err
	}
	if err := requireRow(res, domain.ErrUnknownParameter); err != nil {
		return 0, err
	}

	var count int
	err = t.QueryRow(`SELECT rollback_count FROM parameters WHERE name = ?`, name).Scan(&count)
	return count, err
}

// SetParameterFreeze sets or clears the freeze window.
func (t *Tx) SetParameterFreeze(name string, frozenUntil sql.NullInt64, updatedAt int64) error {
	res, err := t.Exec(
		`UPDATE parameters SET frozen_until = ?, updated_at = ? WHERE name = ?`,
		frozenUntil, updatedAt, name,
	)
	if err != nil {
		return err
	}
	return requireRow(res, domain.ErrUnknownParameter)
}

func scanParameter(s scanner) (*domain.Parameter, error) {
	var p domain.Parameter
	var typ string
	var minV, maxV sql.NullFloat64
	var frozen sql.NullInt64
	var updated int64

	err := s.Scan(&p.Name, &p.Value, &p.DefaultValue, &typ, &p.Description,
		&minV, &maxV, &p.Voteable, &p.SuperMajority, &frozen, &p.RollbackCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownParameter
	}
	if err != nil {
		return nil, err
	}

	p.Type = domain.ParamType(typ)
	if minV.Valid {
		v := minV.Float64
		p.MinValue = &v
	}
	if maxV.Valid {
		v := maxV.Float64
		p.MaxValue = &v
	}
	p.FrozenUntil = fromNullUnix(frozen)
	p.UpdatedAt = fromNullUnix(sql.NullInt64{Int64: updated, Valid: true})
	return &p, nil
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// ─── Constitutional Articles ────────────────────────────────────────────────

// SeedArticle stores an article row for listing. Articles come from code
// and are replaced wholesale at startup.
func (t *Tx) SeedArticle(a domain.ConstitutionalArticle) error {
	_, err := t.Exec(
		`INSERT INTO constitutional_articles (number, title, rule) VALUES (?, ?, ?)
		 ON CONFLICT(number) DO UPDATE SET title=excluded.title, rule=excluded.rule`,
		a.Number, a.Title, a.Rule,
	)
	return err
}

// ListArticles returns all constitutional articles in order.
func (t *Tx) ListArticles() ([]domain.ConstitutionalArticle, error) {
	rows, err := t.Query(`SELECT number, title, rule FROM constitutional_articles ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []domain.ConstitutionalArticle
	for rows.Next() {
		var a domain.ConstitutionalArticle
		if err := rows.Scan(&a.Number, &a.Title, &a.Rule); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

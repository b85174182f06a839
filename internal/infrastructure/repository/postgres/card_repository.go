package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CardRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS business_cards (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	name_english TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	job_title TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	mobile TEXT NOT NULL DEFAULT '',
	fax TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_business_cards_created_at ON business_cards(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_business_cards_company ON business_cards(company);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const cardColumns = `id, name, name_english, company, job_title, department, email, phone, mobile, fax, address, website, notes, created_at, updated_at`

func (r *CardRepository) Create(ctx context.Context, card *domain.BusinessCard) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO business_cards (
	`+cardColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		card.ID, card.Name, card.NameEnglish, card.Company, card.JobTitle, card.Department,
		card.Email, card.Phone, card.Mobile, card.Fax, card.Address, card.Website, card.Notes,
		card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert business card: %w", err)
	}
	return nil
}

func (r *CardRepository) GetByID(ctx context.Context, id string) (*domain.BusinessCard, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+cardColumns+`
FROM business_cards
WHERE id = $1
`, id)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCardNotFound, "card get", errors.New(id))
		}
		return nil, fmt.Errorf("scan business card: %w", err)
	}
	return card, nil
}

func (r *CardRepository) List(ctx context.Context, limit int) ([]*domain.BusinessCard, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+cardColumns+`
FROM business_cards
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list business cards: %w", err)
	}
	defer rows.Close()

	var cards []*domain.BusinessCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business cards: %w", err)
	}
	return cards, nil
}

// Replace overwrites the whole record; partial updates are not
// supported at this layer.
func (r *CardRepository) Replace(ctx context.Context, card *domain.BusinessCard) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE business_cards
SET name = $2, name_english = $3, company = $4, job_title = $5, department = $6,
	email = $7, phone = $8, mobile = $9, fax = $10, address = $11, website = $12,
	notes = $13, updated_at = $14
WHERE id = $1
`,
		card.ID, card.Name, card.NameEnglish, card.Company, card.JobTitle, card.Department,
		card.Email, card.Phone, card.Mobile, card.Fax, card.Address, card.Website, card.Notes,
		card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("replace business card: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace business card: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrCardNotFound, "card replace", errors.New(card.ID))
	}
	return nil
}

func (r *CardRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM business_cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete business card: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete business card: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrCardNotFound, "card delete", errors.New(id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*domain.BusinessCard, error) {
	var card domain.BusinessCard
	err := row.Scan(
		&card.ID, &card.Name, &card.NameEnglish, &card.Company, &card.JobTitle, &card.Department,
		&card.Email, &card.Phone, &card.Mobile, &card.Fax, &card.Address, &card.Website, &card.Notes,
		&card.CreatedAt, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

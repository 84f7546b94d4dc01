package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// PersonaRepository stores the one persona per account.
type PersonaRepository struct {
	db *DB
}

// NewPersonaRepository creates a new persona repository.
func NewPersonaRepository(db *DB) *PersonaRepository {
	return &PersonaRepository{db: db}
}

// GetByAccount returns the persona for an account or ErrNotFound.
func (r *PersonaRepository) GetByAccount(ctx context.Context, accountID int64) (*models.Persona, error) {
	var p models.Persona
	var interests string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, age, gender, occupation, city, country, interests,
		       communication_style, activity_level, description, background_story, created_at
		FROM personas WHERE account_id = $1
	`, accountID).Scan(
		&p.ID, &p.AccountID, &p.Name, &p.Age, &p.Gender, &p.Occupation, &p.City, &p.Country,
		&interests, &p.CommunicationStyle, &p.ActivityLevel, &p.Description, &p.BackgroundStory,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("persona for account %d: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load persona for account %d: %w", accountID, err)
	}

	if err := json.Unmarshal([]byte(interests), &p.Interests); err != nil {
		return nil, fmt.Errorf("failed to decode persona interests: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// Create stores a persona unless the account already has one, and returns
// whichever persona is stored. Personas are never overwritten.
func (r *PersonaRepository) Create(ctx context.Context, p models.Persona, now time.Time) (*models.Persona, error) {
	if p.Interests == nil {
		p.Interests = []string{}
	}
	interests, err := json.Marshal(p.Interests)
	if err != nil {
		return nil, fmt.Errorf("failed to encode persona interests: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO personas (
			account_id, name, age, gender, occupation, city, country, interests,
			communication_style, activity_level, description, background_story, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (account_id) DO NOTHING
	`, p.AccountID, p.Name, p.Age, p.Gender, p.Occupation, p.City, p.Country, string(interests),
		p.CommunicationStyle, p.ActivityLevel, p.Description, p.BackgroundStory, utc(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert persona: %w", err)
	}

	return r.GetByAccount(ctx, p.AccountID)
}

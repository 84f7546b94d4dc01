package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// ChatRepository stores the discovered-chat working set.
type ChatRepository struct {
	db *DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// AddMany appends chats for an account, ignoring identifiers it already has.
// It returns the number of new rows.
func (r *ChatRepository) AddMany(ctx context.Context, chats []models.DiscoveredChat, now time.Time) (int, error) {
	inserted := 0
	for _, chat := range chats {
		kind := chat.Kind
		if kind == "" {
			kind = models.ChatKindChannel
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO discovered_chats (account_id, identifier, kind, title, relevance_score, source_query, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (account_id, identifier) DO NOTHING
		`, chat.AccountID, chat.Identifier, string(kind), chat.Title, chat.RelevanceScore, chat.SourceQuery, utc(now))
		if err != nil {
			return inserted, fmt.Errorf("failed to insert chat %s: %w", chat.Identifier, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// ListByAccount returns chats at or above minRelevance, most relevant first.
func (r *ChatRepository) ListByAccount(ctx context.Context, accountID int64, minRelevance float64) ([]models.DiscoveredChat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, identifier, kind, title, relevance_score, source_query, created_at
		FROM discovered_chats
		WHERE account_id = $1 AND relevance_score >= $2
		ORDER BY relevance_score DESC, id
	`, accountID, minRelevance)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []models.DiscoveredChat{}
	for rows.Next() {
		var c models.DiscoveredChat
		var kind string
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Identifier, &kind, &c.Title, &c.RelevanceScore, &c.SourceQuery, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		c.Kind = models.ChatKind(kind)
		c.CreatedAt = c.CreatedAt.UTC()
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// CountRelevant counts chats at or above minRelevance.
func (r *ChatRepository) CountRelevant(ctx context.Context, accountID int64, minRelevance float64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM discovered_chats WHERE account_id = $1 AND relevance_score >= $2
	`, accountID, minRelevance).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chats: %w", err)
	}
	return n, nil
}

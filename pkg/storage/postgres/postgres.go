// Package postgres provides a PostgreSQL implementation of storage.TurnStore.
// It uses pgx/v5 for connection pooling and JSONB for referenced documents
// and tool calls.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tkralik/turnstile/pkg/storage"
)

// Store is a PostgreSQL-backed TurnStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.TurnStore at compile time.
var _ storage.TurnStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// WriteTurnSummary appends the record to the conversation's history.
func (s *Store) WriteTurnSummary(ctx context.Context, rec *storage.TurnRecord) error {
	docsJSON, err := json.Marshal(rec.ReferencedDocuments)
	if err != nil {
		return fmt.Errorf("marshaling referenced documents: %w", err)
	}

	callsJSON, err := json.Marshal(rec.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshaling tool calls: %w", err)
	}

	resultsJSON, err := json.Marshal(rec.ToolResults)
	if err != nil {
		return fmt.Errorf("marshaling tool results: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO turns (
			user_id, conversation_id, question, response, model, topic,
			referenced_documents, tool_calls, tool_results, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.UserID, rec.ConversationID, rec.Question, rec.Response,
		rec.Model, nullString(rec.Topic),
		docsJSON, callsJSON, resultsJSON, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	return nil
}

// ConversationExists reports whether the user has turns recorded under
// the conversation.
func (s *Store) ConversationExists(ctx context.Context, userID, conversationID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM turns WHERE user_id = $1 AND conversation_id = $2)",
		userID, conversationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking conversation: %w", err)
	}
	return exists, nil
}

// Turns returns the conversation's recorded turns in write order.
func (s *Store) Turns(ctx context.Context, userID, conversationID string) ([]*storage.TurnRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, conversation_id, question, response, model, topic,
		       referenced_documents, tool_calls, tool_results, started_at, completed_at
		FROM turns
		WHERE user_id = $1 AND conversation_id = $2
		ORDER BY id
	`, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var records []*storage.TurnRecord
	for rows.Next() {
		var rec storage.TurnRecord
		var topic *string
		var docsJSON, callsJSON, resultsJSON []byte

		if err := rows.Scan(
			&rec.UserID, &rec.ConversationID, &rec.Question, &rec.Response,
			&rec.Model, &topic,
			&docsJSON, &callsJSON, &resultsJSON, &rec.StartedAt, &rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}

		if topic != nil {
			rec.Topic = *topic
		}
		if err := json.Unmarshal(docsJSON, &rec.ReferencedDocuments); err != nil {
			return nil, fmt.Errorf("unmarshaling referenced documents: %w", err)
		}
		if err := json.Unmarshal(callsJSON, &rec.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
		}
		if err := json.Unmarshal(resultsJSON, &rec.ToolResults); err != nil {
			return nil, fmt.Errorf("unmarshaling tool results: %w", err)
		}

		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

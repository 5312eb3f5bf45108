package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "ticket repository not configured"

// PostgresStore persists tickets in support_tickets. A partial unique index
// keeps one OPEN ticket per user even across instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts an OPEN ticket, or returns the id of the one already open
// for userKey.
func (s *PostgresStore) Create(ctx context.Context, question, userKey string) (string, error) {
	if s == nil || s.pool == nil {
		return "", errors.New(errRepoNotConfigured)
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO support_tickets (id, user_key, question, status)
		 VALUES ($1, $2, $3, 'OPEN')
		 ON CONFLICT (user_key) WHERE status = 'OPEN' DO NOTHING
		 RETURNING id`,
		uuid.New(), userKey, question,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx,
			`SELECT id FROM support_tickets WHERE user_key = $1 AND status = 'OPEN'`,
			userKey,
		).Scan(&id)
	}
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}
	return id.String(), nil
}

func (s *PostgresStore) MarkAnswered(ctx context.Context, id, answer string, at time.Time) error {
	if s == nil || s.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	ticketID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid ticket id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE support_tickets
		 SET status = 'ANSWERED', answer = $2, answered_at = $3
		 WHERE id = $1 AND status = 'OPEN'`,
		ticketID, answer, at,
	)
	return err
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]Ticket, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_key, question, created_at
		 FROM support_tickets
		 WHERE status = 'OPEN'
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		var (
			id uuid.UUID
			t  Ticket
		)
		if err := rows.Scan(&id, &t.UserKey, &t.Question, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.ID = id.String()
		t.Status = StatusOpen
		out = append(out, t)
	}
	return out, rows.Err()
}

// Ping reports database reachability for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

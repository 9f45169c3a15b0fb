package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/reptile-store-api/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error)
	List(ctx context.Context, status *model.MessageStatus) ([]model.Message, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	Reply(ctx context.Context, msg *model.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgMessageRepo struct{ pool *pgxpool.Pool }

func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &pgMessageRepo{pool: pool}
}

const messageColumns = `id, name, email, subject, body, status, response, responded_at, created_at`

func scanMessage(row pgx.Row, m *model.Message) error {
	var status string
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Body, &status, &m.Response, &m.RespondedAt, &m.CreatedAt); err != nil {
		return err
	}
	m.Status = model.MessageStatus(status)
	return nil
}

func (r *pgMessageRepo) Create(ctx context.Context, m *model.Message) error {
	m.ID = uuid.New()
	m.Status = model.MessageStatusUnread
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, name, email, subject, body, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING created_at`,
		m.ID, m.Name, m.Email, m.Subject, m.Body, string(m.Status),
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *pgMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	m := &model.Message{}
	if err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id), m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *pgMessageRepo) List(ctx context.Context, status *model.MessageStatus) ([]model.Message, error) {
	var s *string
	if status != nil {
		v := string(*status)
		s = &v
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE ($1::text IS NULL OR status = $1) ORDER BY created_at DESC`, s,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead only touches unread messages; replied ones keep their status.
func (r *pgMessageRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(model.MessageStatusRead), string(model.MessageStatusUnread),
	)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

func (r *pgMessageRepo) Reply(ctx context.Context, m *model.Message) error {
	m.Status = model.MessageStatusReplied
	err := r.pool.QueryRow(ctx,
		`UPDATE messages SET status = $2, response = $3, responded_at = NOW() WHERE id = $1 RETURNING responded_at`,
		m.ID, string(m.Status), m.Response,
	).Scan(&m.RespondedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pgx.ErrNoRows
		}
		return fmt.Errorf("reply to message: %w", err)
	}
	return nil
}

func (r *pgMessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

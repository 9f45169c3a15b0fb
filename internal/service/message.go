package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/reptile-store-api/internal/dto"
	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/repository"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageService struct {
	messageRepo repository.MessageRepository
	notifier    Notifier
	log         *slog.Logger
}

func NewMessageService(messageRepo repository.MessageRepository, notifier Notifier, log *slog.Logger) *MessageService {
	return &MessageService{messageRepo: messageRepo, notifier: notifier, log: log}
}

func (s *MessageService) Create(ctx context.Context, req dto.CreateMessageRequest) (*model.Message, error) {
	msg := &model.Message{
		Name: req.Name, Email: req.Email, Subject: req.Subject, Body: req.Body,
		Status: model.MessageStatusUnread,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

func (s *MessageService) List(ctx context.Context, status string) ([]model.Message, error) {
	var filter *model.MessageStatus
	if status != "" {
		st, err := model.ParseMessageStatus(status)
		if err != nil {
			return nil, err
		}
		filter = &st
	}
	return s.messageRepo.List(ctx, filter)
}

// Get returns the message and marks it read when it was unread.
func (s *MessageService) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.Status == model.MessageStatusUnread {
		if err := s.messageRepo.MarkRead(ctx, id); err != nil {
			return nil, err
		}
		msg.Status = model.MessageStatusRead
	}
	return msg, nil
}

// Reply stores the admin's answer and queues it for email delivery.
func (s *MessageService) Reply(ctx context.Context, id uuid.UUID, response string) (*model.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	msg.Response = &response
	if err := s.messageRepo.Reply(ctx, msg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, model.NewMessageReply(msg.ID)); err != nil {
			s.log.Error("publish message reply", "message_id", msg.ID, "error", err)
		}
	}
	return msg, nil
}

func (s *MessageService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.messageRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

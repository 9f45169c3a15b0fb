package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/reptile-store-api/internal/mail"
	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/repository"
)

const (
	notificationQueueName = "notifications"
	dlxExchange           = "notifications.dlx"
	dlqQueueName          = "notifications.dlq"
	idempotencyTTL        = 24 * time.Hour
)

var errUnknownNotification = errors.New("unknown notification")

type NotificationWorker struct {
	channel     *amqp.Channel
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	sender      mail.Sender
	redisClient *redis.Client
	log         *slog.Logger
	done        chan struct{}
}

func NewNotificationWorker(
	ch *amqp.Channel,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
	sender mail.Sender,
	redisClient *redis.Client,
	log *slog.Logger,
) *NotificationWorker {
	return &NotificationWorker{
		channel:     ch,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		messageRepo: messageRepo,
		sender:      sender,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetupRabbitMQ declares exchanges, queues, and bindings (DLX/DLQ).
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, notificationQueueName, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(notificationQueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": notificationQueueName,
	}); err != nil {
		return fmt.Errorf("declare notification queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(notificationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("notification worker started")
	return nil
}

func (w *NotificationWorker) Stop() { close(w.done) }

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var n model.Notification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		w.log.Error("unmarshal notification", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("notification_id", n.ID, "kind", n.Kind)

	idempotencyKey := "notification_sent:" + n.ID.String()
	if w.redisClient != nil {
		exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
		if err != nil {
			log.Error("check idempotency key", "error", err)
			_ = msg.Nack(false, true)
			return
		}
		if exists > 0 {
			log.Info("notification already sent, skipping")
			_ = msg.Ack(false)
			return
		}
	}

	if err := w.Deliver(ctx, n); err != nil {
		log.Error("deliver notification failed", "error", err)
		_ = msg.Nack(false, false) // -> DLQ
		return
	}

	if w.redisClient != nil {
		if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
			log.Error("set idempotency key", "error", err)
		}
	}

	_ = msg.Ack(false)
	log.Info("notification sent")
}

// Deliver renders and sends the email for n.
func (w *NotificationWorker) Deliver(ctx context.Context, n model.Notification) error {
	switch {
	case n.Kind == model.NotificationOrderConfirmation && n.OrderID != nil:
		return w.sendOrderConfirmation(ctx, *n.OrderID)
	case n.Kind == model.NotificationMessageReply && n.MessageID != nil:
		return w.sendMessageReply(ctx, *n.MessageID)
	}
	return fmt.Errorf("%w: %s", errUnknownNotification, n.Kind)
}

func (w *NotificationWorker) sendOrderConfirmation(ctx context.Context, orderID uuid.UUID) error {
	order, err := w.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", orderID)
	}
	user, err := w.userRepo.GetByID(ctx, order.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user not found: %s", order.UserID)
	}

	data := mail.OrderConfirmationData{
		CustomerName: user.FirstName,
		OrderID:      order.ID.String(),
		Total:        order.TotalPrice.StringFixed(2),
		Address:      order.ShippingAddress,
	}
	for _, item := range order.Items {
		name := item.ProductName
		if name == "" && item.ProductID != nil {
			if p, err := w.productRepo.GetByID(ctx, *item.ProductID); err == nil && p != nil {
				name = p.Name
			}
		}
		if name == "" {
			name = "Item no longer listed"
		}
		data.Lines = append(data.Lines, mail.OrderLine{
			Name: name, Quantity: item.Quantity, Price: item.Price.StringFixed(2),
		})
	}

	html, err := mail.RenderOrderConfirmation(data)
	if err != nil {
		return err
	}
	return w.sender.Send(ctx, []string{user.Email}, "Your order confirmation", html)
}

func (w *NotificationWorker) sendMessageReply(ctx context.Context, messageID uuid.UUID) error {
	msg, err := w.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message not found: %s", messageID)
	}
	if msg.Response == nil {
		return fmt.Errorf("message %s has no response", messageID)
	}

	html, err := mail.RenderMessageReply(mail.MessageReplyData{
		Name: msg.Name, Subject: msg.Subject, Original: msg.Body, Response: *msg.Response,
	})
	if err != nil {
		return err
	}
	subject := "Re: " + msg.Subject
	if msg.Subject == "" {
		subject = "Re: your message"
	}
	return w.sender.Send(ctx, []string{msg.Email}, subject, html)
}

package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/repository"
)

type sentMail struct {
	to      []string
	subject string
	html    string
}

type fakeSender struct{ sent []sentMail }

func (f *fakeSender) Send(_ context.Context, to []string, subject, html string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

type stubOrderRepo struct {
	repository.OrderRepository
	orders map[uuid.UUID]*model.Order
}

func (s *stubOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return s.orders[id], nil
}

type stubProductRepo struct {
	repository.ProductRepository
	products map[uuid.UUID]*model.Product
}

func (s *stubProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	return s.products[id], nil
}

type stubUserRepo struct {
	repository.UserRepository
	users map[uuid.UUID]*model.User
}

func (s *stubUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return s.users[id], nil
}

type stubMessageRepo struct {
	repository.MessageRepository
	messages map[uuid.UUID]*model.Message
}

func (s *stubMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Message, error) {
	return s.messages[id], nil
}

func newTestWorker(orders *stubOrderRepo, messages *stubMessageRepo, products *stubProductRepo, users *stubUserRepo, sender *fakeSender) *NotificationWorker {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotificationWorker(nil, orders, products, users, messages, sender, nil, log)
}

func TestNotificationWorker_OrderConfirmation(t *testing.T) {
	userID, orderID, productID := uuid.New(), uuid.New(), uuid.New()
	orders := &stubOrderRepo{orders: map[uuid.UUID]*model.Order{orderID: {
		ID: orderID, UserID: userID, TotalPrice: decimal.RequireFromString("40"),
		Items: []model.OrderItem{
			{ProductID: &productID, Quantity: 2, Price: decimal.NewFromInt(20)},
			{ProductName: "Banded Gecko", Quantity: 1, Price: decimal.Zero},
		},
	}}}
	products := &stubProductRepo{products: map[uuid.UUID]*model.Product{productID: {ID: productID, Name: "Crested Gecko"}}}
	users := &stubUserRepo{users: map[uuid.UUID]*model.User{userID: {ID: userID, Email: "ana@example.com", FirstName: "Ana"}}}
	sender := &fakeSender{}

	w := newTestWorker(orders, &stubMessageRepo{}, products, users, sender)
	require.NoError(t, w.Deliver(context.Background(), model.NewOrderConfirmation(orderID)))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ana@example.com"}, sender.sent[0].to)
	assert.Contains(t, sender.sent[0].html, "Crested Gecko")
	assert.Contains(t, sender.sent[0].html, "Banded Gecko")
	assert.Contains(t, sender.sent[0].html, "$40.00")
}

func TestNotificationWorker_MessageReply(t *testing.T) {
	msgID := uuid.New()
	response := "Yes, two females."
	messages := &stubMessageRepo{messages: map[uuid.UUID]*model.Message{msgID: {
		ID: msgID, Name: "Ana", Email: "ana@example.com", Subject: "Hatchlings", Body: "Any females?", Response: &response,
	}}}
	sender := &fakeSender{}

	w := newTestWorker(&stubOrderRepo{}, messages, &stubProductRepo{}, &stubUserRepo{}, sender)
	require.NoError(t, w.Deliver(context.Background(), model.NewMessageReply(msgID)))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Re: Hatchlings", sender.sent[0].subject)
	assert.Contains(t, sender.sent[0].html, response)
}

func TestNotificationWorker_MissingTargets(t *testing.T) {
	sender := &fakeSender{}
	w := newTestWorker(&stubOrderRepo{}, &stubMessageRepo{}, &stubProductRepo{}, &stubUserRepo{}, sender)

	assert.Error(t, w.Deliver(context.Background(), model.NewOrderConfirmation(uuid.New())))
	assert.Error(t, w.Deliver(context.Background(), model.NewMessageReply(uuid.New())))
	assert.ErrorIs(t, w.Deliver(context.Background(), model.Notification{Kind: "sms"}), errUnknownNotification)
	assert.Empty(t, sender.sent)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/repository"
)

type mockOrderRepo struct {
	orders        map[uuid.UUID]*model.Order
	materialize   func(p repository.MaterializeParams) (*model.Order, bool, error)
	materialized  []repository.MaterializeParams
	listedFilters []repository.OrderFilter
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*model.Order)}
}

func (m *mockOrderRepo) Materialize(_ context.Context, p repository.MaterializeParams) (*model.Order, bool, error) {
	m.materialized = append(m.materialized, p)
	if m.materialize != nil {
		return m.materialize(p)
	}
	order := &model.Order{
		ID: uuid.New(), UserID: p.UserID, Status: model.OrderStatusPaid,
		PaymentIntentID: p.PaymentIntentID, ShippingAddress: p.ShippingAddress, CreatedAt: time.Now(),
	}
	m.orders[order.ID] = order
	return order, true, nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return m.orders[id], nil
}

func (m *mockOrderRepo) GetByPaymentIntentID(_ context.Context, intentID string) (*model.Order, error) {
	for _, o := range m.orders {
		if o.PaymentIntentID == intentID {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockOrderRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	var orders []model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (m *mockOrderRepo) List(_ context.Context, f repository.OrderFilter) ([]model.Order, int, error) {
	m.listedFilters = append(m.listedFilters, f)
	var orders []model.Order
	for _, o := range m.orders {
		if f.Status == nil || o.Status == *f.Status {
			orders = append(orders, *o)
		}
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.OrderStatus) error {
	o, ok := m.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Status = status
	return nil
}

func (m *mockOrderRepo) add(userID uuid.UUID, status model.OrderStatus) *model.Order {
	o := &model.Order{
		ID: uuid.New(), UserID: userID, Status: status,
		TotalPrice: decimal.RequireFromString("99.99"), CreatedAt: time.Now(),
	}
	m.orders[o.ID] = o
	return o
}

func TestOrderService_GetByID(t *testing.T) {
	repo := newMockOrderRepo()
	userID := uuid.New()
	o := repo.add(userID, model.OrderStatusPaid)
	svc := NewOrderService(repo)

	order, err := svc.GetByID(context.Background(), o.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, order.ID)
}

func TestOrderService_GetByID_NotFound(t *testing.T) {
	svc := NewOrderService(newMockOrderRepo())
	_, err := svc.GetByID(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_GetByID_OtherUser(t *testing.T) {
	repo := newMockOrderRepo()
	o := repo.add(uuid.New(), model.OrderStatusPaid)
	svc := NewOrderService(repo)

	_, err := svc.GetByID(context.Background(), o.ID, uuid.New())
	assert.ErrorIs(t, err, ErrOrderAccessDenied)
}

func TestOrderService_UpdateStatus_AnyToAny(t *testing.T) {
	repo := newMockOrderRepo()
	o := repo.add(uuid.New(), model.OrderStatusShipped)
	svc := NewOrderService(repo)

	order, err := svc.UpdateStatus(context.Background(), o.ID, "pending")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.OrderStatusPending, repo.orders[o.ID].Status)

	order, err = svc.UpdateStatus(context.Background(), o.ID, "delivered")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDelivered, order.Status)
}

func TestOrderService_UpdateStatus_Invalid(t *testing.T) {
	repo := newMockOrderRepo()
	o := repo.add(uuid.New(), model.OrderStatusPaid)
	svc := NewOrderService(repo)

	_, err := svc.UpdateStatus(context.Background(), o.ID, "lost")
	assert.ErrorIs(t, err, model.ErrInvalidOrderStatus)
	assert.Equal(t, model.OrderStatusPaid, repo.orders[o.ID].Status)

	_, err = svc.UpdateStatus(context.Background(), uuid.New(), "paid")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_UpdateStatus_UnknownCurrentStatus(t *testing.T) {
	repo := newMockOrderRepo()
	o := repo.add(uuid.New(), model.OrderStatus("archived"))
	svc := NewOrderService(repo)

	_, err := svc.UpdateStatus(context.Background(), o.ID, "shipped")
	assert.ErrorIs(t, err, model.ErrInvalidOrderStatus)
	assert.Equal(t, model.OrderStatus("archived"), repo.orders[o.ID].Status)
}

func TestOrderService_List(t *testing.T) {
	repo := newMockOrderRepo()
	repo.add(uuid.New(), model.OrderStatusPaid)
	repo.add(uuid.New(), model.OrderStatusShipped)
	svc := NewOrderService(repo)

	orders, total, err := svc.List(context.Background(), "shipped", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusShipped, orders[0].Status)
	assert.Equal(t, 5, repo.listedFilters[0].Offset)

	_, _, err = svc.List(context.Background(), "bogus", 1, 5)
	assert.ErrorIs(t, err, model.ErrInvalidOrderStatus)
}

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/flicky/reptile-store-api/internal/model"
)

func TestOrderRepo_Materialize(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	productRepo := NewProductRepository(testPool)

	user := createUser(t, "buyer@example.com")
	lamp := createProduct(t, "Lamp", "20.00", 5)
	bowl := createProduct(t, "Bowl", "4.50", 3)
	cart := fillCart(t, user.ID, map[*model.Product]int{lamp: 2, bowl: 1})

	order, created, err := repo.Materialize(ctx, MaterializeParams{
		PaymentIntentID: "pi_1", UserID: user.ID, CartID: cart.ID, ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, model.OrderStatusPaid, order.Status)
	assert.True(t, decimal.RequireFromString("44.50").Equal(order.TotalPrice))
	assert.Len(t, order.Items, 2)

	lines, err := NewCartRepository(testPool).ListLines(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	l, _ := productRepo.GetByID(ctx, lamp.ID)
	b, _ := productRepo.GetByID(ctx, bowl.ID)
	assert.Equal(t, 3, *l.Stock)
	assert.Equal(t, 2, *b.Stock)

	stored, err := repo.GetByPaymentIntentID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
	assert.Equal(t, "1 Main St", stored.ShippingAddress)
}

func TestOrderRepo_ItemsSurviveProductDelete(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	user := createUser(t, "keeper@example.com")
	tub := createProduct(t, "Feeder Tub", "6.00", 4)
	cart := fillCart(t, user.ID, map[*model.Product]int{tub: 1})

	order, _, err := repo.Materialize(ctx, MaterializeParams{PaymentIntentID: "pi_gone", UserID: user.ID, CartID: cart.ID})
	require.NoError(t, err)
	require.NoError(t, NewProductRepository(testPool).Delete(ctx, tub.ID))

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Nil(t, stored.Items[0].ProductID)
	assert.Equal(t, "Feeder Tub", stored.Items[0].ProductName)
	assert.True(t, decimal.RequireFromString("6.00").Equal(stored.Items[0].Price))
}

func TestOrderRepo_Materialize_Idempotent(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	user := createUser(t, "replay@example.com")
	lamp := createProduct(t, "Lamp", "20.00", 5)
	cart := fillCart(t, user.ID, map[*model.Product]int{lamp: 1})
	params := MaterializeParams{PaymentIntentID: "pi_replay", UserID: user.ID, CartID: cart.ID}

	first, created, err := repo.Materialize(ctx, params)
	require.NoError(t, err)
	require.True(t, created)

	// The cart is refilled before the redirect is replayed; nothing new may be ordered.
	fillCart(t, user.ID, map[*model.Product]int{lamp: 1})
	second, created, err := repo.Materialize(ctx, params)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE payment_intent_id = $1`, "pi_replay").Scan(&count))
	assert.Equal(t, 1, count)

	p, _ := NewProductRepository(testPool).GetByID(ctx, lamp.ID)
	assert.Equal(t, 4, *p.Stock)
}

func TestOrderRepo_Materialize_OversoldRollsBack(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	productRepo := NewProductRepository(testPool)

	user := createUser(t, "oversold@example.com")
	a := createProduct(t, "A", "10", 1)
	b := createProduct(t, "B", "10", 1)
	cart := fillCart(t, user.ID, map[*model.Product]int{a: 1, b: 1})

	zero := 0
	b.Stock = &zero
	require.NoError(t, productRepo.Update(ctx, b))

	_, _, err := repo.Materialize(ctx, MaterializeParams{PaymentIntentID: "pi_over", UserID: user.ID, CartID: cart.ID})
	var se *model.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, b.ID, se.ProductID)

	var orders, items int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&items))
	assert.Zero(t, orders)
	assert.Zero(t, items)

	found, _ := productRepo.GetByID(ctx, a.ID)
	assert.Equal(t, 1, *found.Stock)
	lines, _ := NewCartRepository(testPool).ListLines(ctx, cart.ID)
	assert.Len(t, lines, 2)
}

func TestOrderRepo_Materialize_EmptyCart(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	user := createUser(t, "empty@example.com")
	cart := fillCart(t, user.ID, nil)

	_, _, err := NewOrderRepository(testPool).Materialize(ctx, MaterializeParams{
		PaymentIntentID: "pi_empty", UserID: user.ID, CartID: cart.ID,
	})
	assert.ErrorIs(t, err, model.ErrEmptyCart)
}

func TestOrderRepo_Materialize_AnimalCounts(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	productRepo := NewProductRepository(testPool)

	user := createUser(t, "animal@example.com")
	animal := &model.Product{Name: "Leopard Gecko", Price: decimal.NewFromInt(60), IsAnimal: true, MaleQuantity: 1, FemaleQuantity: 1, UnknownQuantity: 1}
	require.NoError(t, productRepo.Create(ctx, animal))
	cart := fillCart(t, user.ID, map[*model.Product]int{animal: 2})

	_, created, err := NewOrderRepository(testPool).Materialize(ctx, MaterializeParams{
		PaymentIntentID: "pi_animal", UserID: user.ID, CartID: cart.ID,
	})
	require.NoError(t, err)
	require.True(t, created)

	found, _ := productRepo.GetByID(ctx, animal.ID)
	assert.Equal(t, 0, found.UnknownQuantity)
	assert.Equal(t, 0, found.MaleQuantity)
	assert.Equal(t, 1, found.FemaleQuantity)
}

func TestOrderRepo_Materialize_ConcurrentLastUnit(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	last := createProduct(t, "Last Unit", "99", 1)
	u1 := createUser(t, "one@example.com")
	u2 := createUser(t, "two@example.com")
	c1 := fillCart(t, u1.ID, map[*model.Product]int{last: 1})
	c2 := fillCart(t, u2.ID, map[*model.Product]int{last: 1})

	results := make([]error, 2)
	var g errgroup.Group
	for i, p := range []MaterializeParams{
		{PaymentIntentID: "pi_a", UserID: u1.ID, CartID: c1.ID},
		{PaymentIntentID: "pi_b", UserID: u2.ID, CartID: c2.ID},
	} {
		i, p := i, p
		g.Go(func() error {
			_, _, results[i] = repo.Materialize(ctx, p)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, oversold int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInsufficientStock):
			oversold++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, oversold)

	p, _ := NewProductRepository(testPool).GetByID(ctx, last.ID)
	assert.Equal(t, 0, *p.Stock)
}

func TestOrderRepo_Materialize_ConcurrentSameIntent(t *testing.T) {
	cleanupAll(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)

	user := createUser(t, "race@example.com")
	lamp := createProduct(t, "Lamp", "20", 5)
	cart := fillCart(t, user.ID, map[*model.Product]int{lamp: 1})
	params := MaterializeParams{PaymentIntentID: "pi_race", UserID: user.ID, CartID: cart.ID}

	created := make([]bool, 2)
	var g errgroup.Group
	for i := range created {
		i := i
		g.Go(func() error {
			var err error
			_, created[i], err = repo.Materialize(ctx, params)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.NotEqual(t, created[0], created[1])

	p, _ := NewProductRepository(testPool).GetByID(ctx, lamp.ID)
	assert.Equal(t, 4, *p.Stock)
}

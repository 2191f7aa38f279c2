package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int { return &v }

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type cartFixture struct {
	svc    *CartService
	repo   *countingRepository
	cache  *mockCache
	lookup *fakeLookup
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	repo := &countingRepository{CartRepository: repository.NewMemoryRepository()}
	c := newMockCache()
	lookup := &fakeLookup{products: map[int64]*domain.Product{
		1: {ID: 1, Name: "Classic Leather Sneaker", Price: mustDecimal("50.00"), Category: "sneakers"},
		2: {ID: 2, Name: "Trail Runner", Price: mustDecimal("19.99"), Category: "running"},
		3: {ID: 3, Name: "Canvas Slip-On", Price: mustDecimal("10.01"), Category: "casual"},
	}}
	return &cartFixture{
		svc:    NewCartService(repo, c, lookup, discardLogger),
		repo:   repo,
		cache:  c,
		lookup: lookup,
	}
}

func assertTotalInvariant(t *testing.T, c *domain.Cart) {
	t.Helper()
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	assert.True(t, sum.Equal(c.TotalAmount), "total %s != sum of lines %s", c.TotalAmount, sum)
}

func TestGetOrCreate_SameCartTwice(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	second, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.Items)
	assert.True(t, second.TotalAmount.IsZero())
}

func TestGetOrCreate_EmptyUserID(t *testing.T) {
	f := newCartFixture(t)

	_, err := f.svc.GetOrCreate(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetOrCreate_ServesFromCache(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, f.cache.has("u1"))
	readsAfterFirst, _ := f.repo.counts()

	_, err = f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	reads, _ := f.repo.counts()
	assert.Equal(t, readsAfterFirst, reads, "second read must hit the cache")
}

func TestGetOrCreate_CacheErrorFallsBackToStore(t *testing.T) {
	f := newCartFixture(t)
	f.cache.err = errors.New("redis: connection pool timeout")

	cart, err := f.svc.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", cart.UserID)
}

func TestGetOrCreate_StoreFailureIsDependency(t *testing.T) {
	f := newCartFixture(t)
	f.repo.getErr = errStoreDown

	_, err := f.svc.GetOrCreate(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrDependency)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestGetOrCreate_WriteDuringReadIsNotHiddenByCache(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	// The add saves and invalidates after GetOrCreate read the empty cart
	// but before it fills the cache.
	f.repo.afterRead = func() {
		_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(9)})
		require.NoError(t, err)
	}

	before, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, before.Items)
	assert.False(t, f.cache.has("u1"), "older read must not be cached")

	cart, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 9, cart.Items[0].Size)
	assert.True(t, mustDecimal("50.00").Equal(cart.TotalAmount))
	assert.True(t, f.cache.has("u1"))
}

func TestGetOrCreate_ConcurrentCallersShareOneCart(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart, err := f.svc.GetOrCreate(ctx, "u1")
			if assert.NoError(t, err) {
				ids[i] = cart.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestAddItem_MergesSameProductAndSize(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42), Quantity: intPtr(2)})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42), Quantity: intPtr(3)})
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.True(t, mustDecimal("250.00").Equal(view.TotalAmount))
}

func TestAddItem_DifferentSizesAreSeparateLines(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(43)})
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.Equal(t, 42, view.Items[0].Size)
	assert.Equal(t, 43, view.Items[1].Size)
}

func TestAddItem_DefaultsQuantityToOne(t *testing.T) {
	f := newCartFixture(t)

	view, err := f.svc.AddItem(context.Background(), "u1", AddItemInput{ProductID: 2, Size: intPtr(40)})
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 1, view.Items[0].Quantity)
}

func TestAddItem_ResolvesProductDetails(t *testing.T) {
	f := newCartFixture(t)

	view, err := f.svc.AddItem(context.Background(), "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	require.NotNil(t, view.Items[0].Product)
	assert.Equal(t, "Classic Leather Sneaker", view.Items[0].Product.Name)
}

func TestAddItem_SnapshotsUnitPrice(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)

	f.lookup.setPrice(1, "75.00")
	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.True(t, mustDecimal("50.00").Equal(view.Items[0].UnitPrice))
	assert.True(t, mustDecimal("100.00").Equal(view.TotalAmount))
}

func TestAddItem_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   AddItemInput
	}{
		{"missing size", AddItemInput{ProductID: 1}},
		{"zero quantity", AddItemInput{ProductID: 1, Size: intPtr(42), Quantity: intPtr(0)}},
		{"negative quantity", AddItemInput{ProductID: 1, Size: intPtr(42), Quantity: intPtr(-3)}},
		{"missing product", AddItemInput{Size: intPtr(42)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCartFixture(t)

			_, err := f.svc.AddItem(context.Background(), "u1", tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)

			_, writes := f.repo.counts()
			assert.Zero(t, writes)
		})
	}
}

func TestAddItem_UnknownProduct(t *testing.T) {
	f := newCartFixture(t)

	_, err := f.svc.AddItem(context.Background(), "u1", AddItemInput{ProductID: 404, Size: intPtr(42)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, writes := f.repo.counts()
	assert.Zero(t, writes)
}

func TestAddItem_LookupFailureIsDependency(t *testing.T) {
	f := newCartFixture(t)
	f.lookup.byIDErr = errors.Join(domain.ErrDependency, errStoreDown)

	_, err := f.svc.AddItem(context.Background(), "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	assert.ErrorIs(t, err, domain.ErrDependency)
}

func TestAddItem_InvalidatesCache(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.True(t, f.cache.has("u1"))

	_, err = f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)
	assert.False(t, f.cache.has("u1"))

	cart, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestAddItem_RejectsQuantityOverflow(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42), Quantity: intPtr(math.MaxInt)})
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	cart, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, math.MaxInt, cart.Items[0].Quantity)
}

func TestAddItem_DegradesWhenDetailsUnavailable(t *testing.T) {
	f := newCartFixture(t)
	f.lookup.err = errStoreDown

	view, err := f.svc.AddItem(context.Background(), "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Nil(t, view.Items[0].Product)
	assert.True(t, mustDecimal("50.00").Equal(view.TotalAmount))
}

func TestAddItem_RetriesOnVersionConflict(t *testing.T) {
	f := newCartFixture(t)
	f.repo.conflicts = 2

	view, err := f.svc.AddItem(context.Background(), "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)

	_, writes := f.repo.counts()
	assert.Equal(t, 3, writes)
}

func TestAddItem_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newCartFixture(t)
	f.repo.conflicts = maxSaveAttempts

	_, err := f.svc.AddItem(context.Background(), "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAddItem_ConflictRetryKeepsConcurrentWrite(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)

	// A competing writer lands between our read and our save.
	var once sync.Once
	f.repo.onBeforeSave = func() {
		once.Do(func() {
			cart, err := f.repo.CartRepository.GetCart(ctx, "u1")
			require.NoError(t, err)
			cart.Merge(3, 38, 1, mustDecimal("10.01"))
			cart.Recalculate()
			require.NoError(t, f.repo.CartRepository.SaveCart(ctx, cart))
		})
	}

	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 2, Size: intPtr(40)})
	require.NoError(t, err)

	require.Len(t, view.Items, 3)
	assert.True(t, mustDecimal("80.00").Equal(view.TotalAmount))
}

func TestUpdateItemQuantity(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 2, Size: intPtr(40)})
	require.NoError(t, err)
	itemID := view.Items[0].ID

	cart, err := f.svc.UpdateItemQuantity(ctx, "u1", itemID, 4)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 4, cart.Items[0].Quantity)
	assert.True(t, mustDecimal("79.96").Equal(cart.TotalAmount))
	assertTotalInvariant(t, cart)
}

func TestUpdateItemQuantity_RejectsBelowOne(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 2, Size: intPtr(40)})
	require.NoError(t, err)

	_, err = f.svc.UpdateItemQuantity(ctx, "u1", view.Items[0].ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateItemQuantity_NotFound(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateItemQuantity(ctx, "nobody", "item", 2)
	assert.ErrorIs(t, err, repository.ErrCartNotFound)

	_, err = f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 2, Size: intPtr(40)})
	require.NoError(t, err)

	_, err = f.svc.UpdateItemQuantity(ctx, "u1", "missing-item", 2)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveItem(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 2, Size: intPtr(40)})
	require.NoError(t, err)

	view, err = f.svc.RemoveItem(ctx, "u1", view.Items[0].ID)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(2), view.Items[0].ProductID)
	assert.True(t, mustDecimal("19.99").Equal(view.TotalAmount))
}

func TestRemoveItem_UnknownIDLeavesCartUnchanged(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	before, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42), Quantity: intPtr(2)})
	require.NoError(t, err)

	after, err := f.svc.RemoveItem(ctx, "u1", "not-in-cart")
	require.NoError(t, err)

	require.Len(t, after.Items, 1)
	assert.Equal(t, before.Items[0].ID, after.Items[0].ID)
	assert.True(t, before.TotalAmount.Equal(after.TotalAmount))
}

func TestRemoveItem_NoCart(t *testing.T) {
	f := newCartFixture(t)

	_, err := f.svc.RemoveItem(context.Background(), "nobody", "item")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClear(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: id, Size: intPtr(40)})
		require.NoError(t, err)
	}
	before, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Clear(ctx, "u1"))

	cart, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.ID, cart.ID)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalAmount.IsZero())
}

func TestClear_NoCart(t *testing.T) {
	f := newCartFixture(t)

	err := f.svc.Clear(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCartLifecycle(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()

	cart, err := f.svc.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, cart.TotalAmount.IsZero())

	view, err := f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)
	assert.True(t, mustDecimal("50").Equal(view.TotalAmount))

	view, err = f.svc.AddItem(ctx, "u1", AddItemInput{ProductID: 1, Size: intPtr(42)})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.True(t, mustDecimal("100").Equal(view.TotalAmount))

	view, err = f.svc.RemoveItem(ctx, "u1", view.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.TotalAmount.IsZero())
}

func TestTotalInvariant_RandomOperations(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	faker := gofakeit.New(42)

	for range 50 {
		cart, err := f.svc.GetOrCreate(ctx, "u1")
		require.NoError(t, err)

		switch op := faker.IntRange(0, 3); {
		case op <= 1 || len(cart.Items) == 0:
			_, err = f.svc.AddItem(ctx, "u1", AddItemInput{
				ProductID: int64(faker.IntRange(1, 3)),
				Size:      intPtr(faker.IntRange(38, 40)),
				Quantity:  intPtr(faker.IntRange(1, 4)),
			})
		case op == 2:
			item := cart.Items[faker.IntRange(0, len(cart.Items)-1)]
			_, err = f.svc.UpdateItemQuantity(ctx, "u1", item.ID, faker.IntRange(1, 9))
		default:
			item := cart.Items[faker.IntRange(0, len(cart.Items)-1)]
			_, err = f.svc.RemoveItem(ctx, "u1", item.ID)
		}
		require.NoError(t, err)

		stored, err := f.repo.CartRepository.GetCart(ctx, "u1")
		require.NoError(t, err)
		assertTotalInvariant(t, stored)
		for _, it := range stored.Items {
			assert.GreaterOrEqual(t, it.Quantity, 1)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	f := newCartFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.GetOrCreate(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrDependency)
}

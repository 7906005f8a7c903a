//go:build integration

package postgres

import (
	"context"
	"math/big"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"orderbookSync/internal/model"
)

const testMaker = "0x00000000000000000000000000000000000000aa"

// newTestStore starts a throwaway Postgres with schema.sql applied.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("orderbook"),
		tcpostgres.WithUsername("syncer"),
		tcpostgres.WithPassword("syncer"),
		tcpostgres.WithInitScripts("schema.sql"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testOrder(id string, nonce int64, status model.FillabilityStatus, createdAt time.Time) *model.Order {
	return &model.Order{
		ID:        id,
		Kind:      model.KindLooksRare,
		Side:      model.SideSell,
		Status:    status,
		Approval:  model.ApprovalApproved,
		Contract:  "0x00000000000000000000000000000000000000c0",
		TokenID:   "1",
		Currency:  "0x00000000000000000000000000000000000000e0",
		Maker:     testMaker,
		Price:     big.NewInt(100),
		Nonce:     big.NewInt(nonce),
		CreatedAt: createdAt,
	}
}

func TestOrdersPageVisitsEveryOrderOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	created := map[string]time.Time{
		"0x01": base,
		"0x02": base,
		"0x03": base,
		"0x04": base.Add(time.Second),
		"0x05": base.Add(2 * time.Second),
	}
	for id, at := range created {
		if err := store.SaveOrder(ctx, testOrder(id, 1, model.StatusValid, at)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	var (
		cursor *model.SweepCursor
		seen   []string
		calls  int
	)
	for {
		calls++
		if calls > len(created)+1 {
			t.Fatalf("sweep did not terminate after %d pages", calls)
		}
		page, err := store.OrdersPage(ctx, cursor, 1)
		if err != nil {
			t.Fatalf("orders page: %v", err)
		}
		if len(page) == 0 {
			break
		}
		seen = append(seen, page[0].ID)
		next := page[len(page)-1]
		cursor = &next
	}

	require.Equal(t, len(created)+1, calls)
	require.Equal(t, []string{"0x05", "0x04", "0x03", "0x02", "0x01"}, seen)
}

func TestCancelOrdersBelowNonceTouchesOnlyActiveMatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	orders := []*model.Order{
		testOrder("0xa1", 1, model.StatusValid, now),
		testOrder("0xa2", 2, model.StatusNoBalance, now),
		testOrder("0xa3", 3, model.StatusFilled, now),
		testOrder("0xa4", 10, model.StatusValid, now),
	}
	other := testOrder("0xa5", 1, model.StatusValid, now)
	other.Maker = "0x00000000000000000000000000000000000000bb"
	orders = append(orders, other)
	for _, o := range orders {
		if err := store.SaveOrder(ctx, o); err != nil {
			t.Fatalf("save %s: %v", o.ID, err)
		}
	}

	updates, err := store.CancelOrdersBelowNonce(ctx, model.KindLooksRare, testMaker, big.NewInt(5))
	if err != nil {
		t.Fatalf("cancel below nonce: %v", err)
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	require.Len(t, updates, 2)
	require.Equal(t, "0xa1", updates[0].ID)
	require.Equal(t, model.StatusValid, updates[0].PreviousStatus)
	require.Equal(t, "0xa2", updates[1].ID)
	require.Equal(t, model.StatusNoBalance, updates[1].PreviousStatus)
	for _, u := range updates {
		require.Equal(t, model.StatusCancelled, u.Status)
		require.Equal(t, model.KindLooksRare, u.Kind)
	}

	for id, want := range map[string]model.FillabilityStatus{
		"0xa1": model.StatusCancelled,
		"0xa2": model.StatusCancelled,
		"0xa3": model.StatusFilled,
		"0xa4": model.StatusValid,
		"0xa5": model.StatusValid,
	} {
		got, err := store.GetOrder(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		require.Equal(t, want, got.Status, id)
	}

	again, err := store.CancelOrdersBelowNonce(ctx, model.KindLooksRare, testMaker, big.NewInt(5))
	if err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	require.Empty(t, again)
}

func TestCancelOrdersWithNoncesMatchesExactValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, o := range []*model.Order{
		testOrder("0xb1", 7, model.StatusValid, now),
		testOrder("0xb2", 8, model.StatusValid, now),
		testOrder("0xb3", 9, model.StatusValid, now),
	} {
		if err := store.SaveOrder(ctx, o); err != nil {
			t.Fatalf("save %s: %v", o.ID, err)
		}
	}

	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	updates, err := store.CancelOrdersWithNonces(ctx, model.KindLooksRare, testMaker, []*big.Int{big.NewInt(7), big.NewInt(9), huge})
	if err != nil {
		t.Fatalf("cancel with nonces: %v", err)
	}
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, u.ID)
	}
	sort.Strings(ids)
	require.Equal(t, []string{"0xb1", "0xb3"}, ids)

	got, err := store.GetOrder(ctx, "0xb2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	require.Equal(t, model.StatusValid, got.Status)
}

func TestDeleteEventsByBlockKeepsPendingUntilCleared(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const block = "0xblock"
	base := model.BaseEventParams{
		Address:     "0x00000000000000000000000000000000000000d0",
		BlockNumber: 10,
		BlockHash:   block,
		TxHash:      "0xtx",
		Timestamp:   1700000000,
	}
	nonceBase := base
	nonceBase.LogIndex = 1
	n, err := store.InsertEvents(ctx, model.EventBatch{
		Cancels: []model.CancelEvent{{OrderKind: model.KindLooksRare, OrderHash: "0xc1", BaseEventParams: base}},
		NonceCancels: []model.NonceCancelEvent{{
			OrderKind: model.KindLooksRare, Maker: testMaker, Nonce: big.NewInt(3), BaseEventParams: nonceBase,
		}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	require.Equal(t, 2, n)

	removed, err := store.DeleteEventsByBlock(ctx, block)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	require.Equal(t, 2, removed.Count)
	require.Equal(t, []string{"0xc1"}, removed.OrderHashes)
	require.Equal(t, []model.MakerRef{{OrderKind: model.KindLooksRare, Maker: testMaker}}, removed.Makers)

	// A retry after a failed follow-up still reports the references.
	retry, err := store.DeleteEventsByBlock(ctx, block)
	if err != nil {
		t.Fatalf("retry delete: %v", err)
	}
	require.Equal(t, 0, retry.Count)
	require.Equal(t, []string{"0xc1"}, retry.OrderHashes)
	require.Len(t, retry.Makers, 1)

	if err := store.ClearPendingReorg(ctx, block); err != nil {
		t.Fatalf("clear: %v", err)
	}
	done, err := store.DeleteEventsByBlock(ctx, block)
	if err != nil {
		t.Fatalf("delete after clear: %v", err)
	}
	require.Empty(t, done.OrderHashes)
	require.Empty(t, done.Makers)

	cancelled, err := store.IsOrderCancelled(ctx, "0xc1")
	if err != nil {
		t.Fatalf("is cancelled: %v", err)
	}
	require.False(t, cancelled)
}

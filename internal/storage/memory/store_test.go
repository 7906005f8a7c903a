package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orderbookSync/internal/indexer"
	"orderbookSync/internal/jobs"
	"orderbookSync/internal/ledger"
	"orderbookSync/internal/model"
	"orderbookSync/internal/orderbook"
)

var (
	_ ledger.Store          = (*Store)(nil)
	_ orderbook.Store       = (*Store)(nil)
	_ orderbook.StateReader = (*Store)(nil)
	_ jobs.OrderPager       = (*Store)(nil)
	_ indexer.StateStore    = (*Store)(nil)
)

func TestOrdersPageWalksNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"0xa", "0xb", "0xc"} {
		require.NoError(t, store.SaveOrder(ctx, &model.Order{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	// Same timestamp as 0xc, ordered by id.
	require.NoError(t, store.SaveOrder(ctx, &model.Order{ID: "0xd", CreatedAt: base.Add(2 * time.Hour)}))

	var ids []string
	var cursor *model.SweepCursor
	for {
		page, err := store.OrdersPage(ctx, cursor, 1)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		ids = append(ids, page[0].ID)
		cursor = &page[0]
	}
	require.Equal(t, []string{"0xd", "0xc", "0xb", "0xa"}, ids)
}

func TestCancelOrdersOnlyTouchesActiveMatches(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := []*model.Order{
		{ID: "0x1", Kind: model.KindLooksRare, Maker: "0xMAKER", Nonce: big.NewInt(1), Status: model.StatusValid},
		{ID: "0x2", Kind: model.KindLooksRare, Maker: "0xmaker", Nonce: big.NewInt(5), Status: model.StatusNoBalance},
		{ID: "0x3", Kind: model.KindLooksRare, Maker: "0xmaker", Nonce: big.NewInt(2), Status: model.StatusFilled},
		{ID: "0x4", Kind: model.KindWyvernV23, Maker: "0xmaker", Nonce: big.NewInt(1), Status: model.StatusValid},
	}
	for _, o := range orders {
		require.NoError(t, store.SaveOrder(ctx, o))
	}

	updates, err := store.CancelOrdersBelowNonce(ctx, model.KindLooksRare, "0xmaker", big.NewInt(3))
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, "0x1", updates[0].ID)
	require.Equal(t, model.StatusValid, updates[0].PreviousStatus)

	updates, err = store.CancelOrdersWithNonces(ctx, model.KindLooksRare, "0xmaker", []*big.Int{big.NewInt(5), big.NewInt(2)})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	require.Equal(t, "0x2", updates[0].ID)

	filled, err := store.GetOrder(ctx, "0x3")
	require.NoError(t, err)
	require.Equal(t, model.StatusFilled, filled.Status)

	other, err := store.GetOrder(ctx, "0x4")
	require.NoError(t, err)
	require.Equal(t, model.StatusValid, other.Status)
}

func TestApprovalFollowsLatestEvent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.RecordApproval("0xnft", "0xowner", "0xop", true, 10, 1)
	store.RecordApproval("0xnft", "0xowner", "0xop", false, 9, 0)

	approved, err := store.NftApproval(ctx, "0xnft", "0xowner", "0xop")
	require.NoError(t, err)
	require.True(t, approved)

	store.RecordApproval("0xnft", "0xowner", "0xop", false, 10, 2)
	approved, err = store.NftApproval(ctx, "0xnft", "0xowner", "0xop")
	require.NoError(t, err)
	require.False(t, approved)
}

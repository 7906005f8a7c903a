package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbookSync/internal/model"
	"orderbookSync/internal/orderbook"
	"orderbookSync/internal/storage/memory"
)

const maker = "0x2222222222222222222222222222222222222222"

func newOrder(id string, nonce int64) *model.Order {
	return &model.Order{
		ID:                id,
		Kind:              model.KindLooksRare,
		Side:              model.SideSell,
		Status:            model.StatusValid,
		Approval:          model.ApprovalApproved,
		Maker:             maker,
		Price:             big.NewInt(1),
		Quantity:          big.NewInt(1),
		QuantityRemaining: big.NewInt(1),
		Nonce:             big.NewInt(nonce),
		CreatedAt:         time.Unix(1_700_000_000, 0),
	}
}

func params(block string, logIndex uint64) model.BaseEventParams {
	return model.BaseEventParams{BlockHash: block, BlockNumber: 100, TxHash: "0xt" + block, LogIndex: logIndex}
}

func TestAppendIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	l := New(store, nil)
	ctx := context.Background()

	batch := model.EventBatch{Cancels: []model.CancelEvent{{OrderHash: "0x01", BaseEventParams: params("0xb1", 0)}}}

	n, err := l.Append(ctx, model.KindLooksRare, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = l.Append(ctx, model.KindLooksRare, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReorgRoundTrip(t *testing.T) {
	store := memory.NewStore()
	l := New(store, nil)
	r := orderbook.NewReconciler(orderbook.Config{ChainID: 1}, store, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveOrder(ctx, newOrder("0x01", 0)))
	require.NoError(t, store.SaveOrder(ctx, newOrder("0x02", 0)))
	require.NoError(t, store.SaveOrder(ctx, newOrder("0x03", 0)))

	before := snapshot(t, r, "0x01", "0x02", "0x03")

	_, err := l.Append(ctx, model.KindLooksRare, model.EventBatch{
		Cancels: []model.CancelEvent{{OrderHash: "0x01", BaseEventParams: params("0xorphan", 0)}},
		Fills: []model.FillEvent{{
			SellOrderHash:   "0x02",
			Amount:          big.NewInt(1),
			BaseEventParams: params("0xorphan", 1),
		}},
		BulkCancels: []model.BulkCancelEvent{{Maker: maker, MinNonce: big.NewInt(1), BaseEventParams: params("0xorphan", 2)}},
	})
	require.NoError(t, err)
	_, err = l.Append(ctx, model.KindLooksRare, model.EventBatch{
		Cancels: []model.CancelEvent{{OrderHash: "0x09", BaseEventParams: params("0xkept", 0)}},
	})
	require.NoError(t, err)

	during := snapshot(t, r, "0x01", "0x02", "0x03")
	assert.Equal(t, model.StatusCancelled, during["0x01"])
	assert.Equal(t, model.StatusCancelled, during["0x03"])

	infos, err := l.RemoveForBlock(ctx, "0xORPHAN")
	require.NoError(t, err)
	hashes := make([]string, 0, len(infos))
	for _, info := range infos {
		assert.Equal(t, ReorgContext("0xorphan"), info.Context)
		hashes = append(hashes, info.Hash)
	}
	assert.Equal(t, []string{"0x01", "0x02", "0x03"}, hashes)

	after := snapshot(t, r, "0x01", "0x02", "0x03")
	assert.Equal(t, before, after)

	cancelled, err := store.IsOrderCancelled(ctx, "0x09")
	require.NoError(t, err)
	assert.True(t, cancelled, "events of other blocks survive")
}

func snapshot(t *testing.T, r *orderbook.Reconciler, ids ...string) map[string]model.FillabilityStatus {
	t.Helper()
	out := make(map[string]model.FillabilityStatus, len(ids))
	for _, id := range ids {
		res, err := r.Reconcile(context.Background(), model.OrderInfo{Context: "test", Hash: id})
		require.NoError(t, err)
		out[id] = res.Order.Status
	}
	return out
}

func TestRemoveForBlockRepeatsUntilCompleted(t *testing.T) {
	store := memory.NewStore()
	l := New(store, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveOrder(ctx, newOrder("0x05", 0)))
	_, err := l.Append(ctx, model.KindLooksRare, model.EventBatch{
		Cancels:     []model.CancelEvent{{OrderHash: "0x01", BaseEventParams: params("0xorphan", 0)}},
		BulkCancels: []model.BulkCancelEvent{{Maker: maker, MinNonce: big.NewInt(1), BaseEventParams: params("0xorphan", 1)}},
	})
	require.NoError(t, err)

	first, err := l.RemoveForBlock(ctx, "0xorphan")
	require.NoError(t, err)
	require.Len(t, first, 2)

	// The follow-up hand-off failed; a retry still sees the affected orders.
	retry, err := l.RemoveForBlock(ctx, "0xORPHAN")
	require.NoError(t, err)
	assert.Equal(t, first, retry)

	require.NoError(t, l.CompleteRemoval(ctx, "0xorphan"))
	settled, err := l.RemoveForBlock(ctx, "0xorphan")
	require.NoError(t, err)
	assert.Empty(t, settled)
}

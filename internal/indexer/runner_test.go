package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"orderbookSync/internal/model"
	"orderbookSync/internal/storage/memory"
	"orderbookSync/internal/syncer"
)

type fakeSource struct {
	logs       []types.Log
	filterErrs int
	tsCalls    int
	ranges     []BlockRange
}

func (f *fakeSource) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return 20, nil }

func (f *fakeSource) BlockTimestamp(_ context.Context, hash common.Hash) (uint64, error) {
	f.tsCalls++
	return 1_700_000_000 + uint64(hash[31]), nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	if f.filterErrs > 0 {
		f.filterErrs--
		return nil, errors.New("rpc unavailable")
	}
	f.ranges = append(f.ranges, BlockRange{From: from, To: to})
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type recordingHandler struct {
	batches  [][]model.RawLog
	backfill []bool
	reorgs   []string
}

func (h *recordingHandler) HandleBatch(_ context.Context, logs []model.RawLog, backfill bool) (*syncer.Summary, error) {
	h.batches = append(h.batches, logs)
	h.backfill = append(h.backfill, backfill)
	return &syncer.Summary{Logs: len(logs)}, nil
}

func (h *recordingHandler) HandleReorg(_ context.Context, blockHash string) (int, error) {
	h.reorgs = append(h.reorgs, blockHash)
	return 0, nil
}

func testLog(block uint64, blockHash byte, index uint, removed bool) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x7be8076f4ea4a4ad08075c2508e481d6c946d12b"),
		Topics:      []common.Hash{common.HexToHash("0x01")},
		Data:        []byte{0xab},
		BlockNumber: block,
		BlockHash:   common.BytesToHash([]byte{blockHash}),
		TxHash:      common.BytesToHash([]byte{0xee, blockHash}),
		TxIndex:     2,
		Index:       index,
		Removed:     removed,
	}
}

func TestRunnerProcessesBatchesAndCheckpoints(t *testing.T) {
	source := &fakeSource{
		filterErrs: 1,
		logs: []types.Log{
			testLog(2, 0x02, 0, false),
			testLog(2, 0x02, 1, false),
			testLog(5, 0x05, 0, false),
		},
	}
	handler := &recordingHandler{}
	checkpoint := NewStateCheckpoint(memory.NewStore(), "ingest")

	runner := NewRunner(source, handler, checkpoint, nil)
	err := runner.Run(context.Background(), RunConfig{FromBlock: 1, ToBlock: 6, BatchSize: 3, MaxRetries: 2, RetryBackoff: 1})
	require.NoError(t, err)

	require.Len(t, handler.batches, 2)
	require.Len(t, handler.batches[0], 2)
	require.Len(t, handler.batches[1], 1)
	require.Equal(t, 2, source.tsCalls, "timestamps are fetched once per block")

	first := handler.batches[0][0]
	require.Equal(t, uint64(1), first.ChainID)
	require.Equal(t, uint64(2), first.BlockNumber)
	require.Equal(t, "0xab", first.Data)
	require.Equal(t, uint64(1_700_000_002), first.Timestamp)

	cp, ok, err := checkpoint.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(6), cp.LastProcessedBlock)

	// A second run resumes after the checkpoint and finds nothing left.
	source.ranges = nil
	require.NoError(t, runner.Run(context.Background(), RunConfig{FromBlock: 1, ToBlock: 6, BatchSize: 3}))
	require.Empty(t, source.ranges)
}

func TestRunnerRollsBackRemovedLogs(t *testing.T) {
	source := &fakeSource{
		logs: []types.Log{
			testLog(3, 0x03, 0, true),
			testLog(3, 0x03, 1, true),
			testLog(3, 0x13, 0, false),
		},
	}
	handler := &recordingHandler{}

	runner := NewRunner(source, handler, nil, nil)
	require.NoError(t, runner.Run(context.Background(), RunConfig{FromBlock: 3, ToBlock: 3, BatchSize: 10, Backfill: true}))

	require.Equal(t, []string{common.BytesToHash([]byte{0x03}).Hex()}, handler.reorgs)
	require.Len(t, handler.batches, 1)
	require.Len(t, handler.batches[0], 1)
	require.Equal(t, []bool{true}, handler.backfill)
}

func TestRunnerDefaultsToConfirmedHead(t *testing.T) {
	source := &fakeSource{}
	handler := &recordingHandler{}

	runner := NewRunner(source, handler, nil, nil)
	require.NoError(t, runner.Run(context.Background(), RunConfig{FromBlock: 10, Confirmations: 5, BatchSize: 100}))
	require.Equal(t, []BlockRange{{From: 10, To: 15}}, source.ranges)
}

func TestFileCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	cp := NewFileCheckpoint(path)

	_, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cp.Save(context.Background(), 42))
	loaded, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), loaded.LastProcessedBlock)
	require.NotEmpty(t, loaded.UpdatedAt)
}

func TestLogFilter(t *testing.T) {
	addresses, topics, err := LogFilter(map[string][]string{
		model.KindWyvernV23: {"0x7be8076f4ea4a4ad08075c2508e481d6c946d12b"},
		model.KindLooksRare: {"0x59728544B08AB483533076417FbBB2fD0B17CE3a", "0x59728544b08ab483533076417fbbb2fd0b17ce3a"},
	})
	require.NoError(t, err)
	require.Len(t, addresses, 2)
	require.Len(t, topics, 7)

	addresses, _, err = LogFilter(map[string][]string{model.KindWyvernV23: nil})
	require.NoError(t, err)
	require.Nil(t, addresses)

	_, _, err = LogFilter(map[string][]string{"seaport": nil})
	require.Error(t, err)
}

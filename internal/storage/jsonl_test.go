package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"orderbookSync/internal/model"
)

var (
	_ DecodeErrorSink = (*JsonlStorage)(nil)
	_ DecodeErrorSink = Discard{}
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "decode_errors.jsonl")
	sink := NewJsonlStorage(path)

	log := model.RawLog{
		ChainID:     1,
		BlockNumber: 12,
		BlockHash:   "0xB1",
		TxHash:      "0xT1",
		LogIndex:    4,
		Address:     "0xEX",
		Topics:      []string{"0xTOPIC"},
	}
	require.NoError(t, sink.PutDecodeErrors(nil))
	require.NoError(t, sink.PutDecodeErrors([]model.DecodeError{model.NewDecodeError(model.KindWyvernV23, log, errors.New("short data"))}))
	require.NoError(t, sink.PutDecodeErrors([]model.DecodeError{model.NewDecodeError(model.KindLooksRare, log, errors.New("bad topic"))}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []model.DecodeError
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.DecodeError
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		got = append(got, record)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	require.Equal(t, model.KindWyvernV23, got[0].OrderKind)
	require.Equal(t, "short data", got[0].Error)
	require.Equal(t, "bad topic", got[1].Error)
	require.Equal(t, uint64(4), got[1].LogIndex)
}

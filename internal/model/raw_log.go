package model

import "strings"

// RawLog is a chain log as delivered by the block source.
type RawLog struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	BatchIndex  uint64   `json:"batch_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
}

// Topic0 returns the lowercased event signature topic, or "" when absent.
func (l RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return strings.ToLower(l.Topics[0])
}

// BaseParams derives the identity and ordering key of any event decoded from the log.
func (l RawLog) BaseParams() BaseEventParams {
	return BaseEventParams{
		Address:     strings.ToLower(l.Address),
		BlockNumber: l.BlockNumber,
		BlockHash:   strings.ToLower(l.BlockHash),
		TxHash:      strings.ToLower(l.TxHash),
		TxIndex:     l.TxIndex,
		LogIndex:    l.LogIndex,
		BatchIndex:  l.BatchIndex,
		Timestamp:   l.Timestamp,
	}
}

package protocol

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func topicNames(contractABI abi.ABI, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[strings.ToLower(contractABI.Events[name].ID.Hex())] = name
	}
	return out
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func parseIndexed(event abi.Event, topics []string, out interface{}) error {
	hashes, err := parseIndexedTopics(event, topics)
	if err != nil {
		return err
	}
	if err := abi.ParseTopics(out, indexedArguments(event.Inputs), hashes); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	return nil
}

func unpackNonIndexed(event abi.Event, dataHex string, want int) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != want {
		return nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	return values, nil
}

func asAddress(value interface{}) (string, error) {
	switch v := value.(type) {
	case common.Address:
		return lowerHex(v), nil
	case *common.Address:
		return lowerHex(*v), nil
	default:
		return "", fmt.Errorf("unsupported address type %T", value)
	}
}

func asHash(value interface{}) (string, error) {
	switch v := value.(type) {
	case [32]byte:
		return strings.ToLower(common.Hash(v).Hex()), nil
	case common.Hash:
		return strings.ToLower(v.Hex()), nil
	default:
		return "", fmt.Errorf("unsupported bytes32 type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asBigIntSlice(value interface{}) ([]*big.Int, error) {
	items, ok := value.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported uint256[] type %T", value)
	}
	out := make([]*big.Int, 0, len(items))
	for _, item := range items {
		n, err := asBigInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

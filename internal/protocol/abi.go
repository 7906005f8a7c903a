package protocol

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"orderbookSync/internal/model"
)

const wyvernV23ABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "hash", "type": "bytes32"}
    ],
    "name": "OrderCancelled",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "buyHash", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "sellHash", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "maker", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "taker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"},
      {"indexed": true, "internalType": "bytes32", "name": "metadata", "type": "bytes32"}
    ],
    "name": "OrdersMatched",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "maker", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "newNonce", "type": "uint256"}
    ],
    "name": "NonceIncremented",
    "type": "event"
  }
]`

const looksRareABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "newMinNonce", "type": "uint256"}
    ],
    "name": "CancelAllOrders",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256[]", "name": "orderNonces", "type": "uint256[]"}
    ],
    "name": "CancelMultipleOrders",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "orderHash", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "orderNonce", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "taker", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "maker", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "strategy", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "currency", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "TakerAsk",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "orderHash", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "orderNonce", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "taker", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "maker", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "strategy", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "currency", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "collection", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "price", "type": "uint256"}
    ],
    "name": "TakerBid",
    "type": "event"
  }
]`

var (
	wyvernV23ABI     abi.ABI
	wyvernV23ABIOnce sync.Once
	wyvernV23ABIErr  error

	looksRareABI     abi.ABI
	looksRareABIOnce sync.Once
	looksRareABIErr  error
)

// WyvernV23ABI returns the parsed Wyvern v2.3 exchange event ABI.
func WyvernV23ABI() (abi.ABI, error) {
	wyvernV23ABIOnce.Do(func() {
		wyvernV23ABI, wyvernV23ABIErr = abi.JSON(strings.NewReader(wyvernV23ABIJSON))
	})
	return wyvernV23ABI, wyvernV23ABIErr
}

// LooksRareABI returns the parsed LooksRare exchange event ABI.
func LooksRareABI() (abi.ABI, error) {
	looksRareABIOnce.Do(func() {
		looksRareABI, looksRareABIErr = abi.JSON(strings.NewReader(looksRareABIJSON))
	})
	return looksRareABI, looksRareABIErr
}

// EventTopics returns the topic0 of every event the given kind decodes,
// sorted so log filters are stable across runs.
func EventTopics(kind string) ([]common.Hash, error) {
	var (
		parsed abi.ABI
		err    error
	)
	switch kind {
	case model.KindWyvernV23:
		parsed, err = WyvernV23ABI()
	case model.KindLooksRare:
		parsed, err = LooksRareABI()
	default:
		return nil, fmt.Errorf("unsupported order kind: %s", kind)
	}
	if err != nil {
		return nil, err
	}

	topics := make([]common.Hash, 0, len(parsed.Events))
	for _, event := range parsed.Events {
		topics = append(topics, event.ID)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Hex() < topics[j].Hex() })
	return topics, nil
}

package indexer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"orderbookSync/internal/protocol"
)

// ParseAddresses converts string addresses into common.Address, dropping
// blanks and duplicates.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	seen := make(map[common.Address]struct{}, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addr := common.HexToAddress(input)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// LogFilter builds the eth_getLogs filter covering every configured
// exchange: the union of their addresses and of the events they decode.
// A kind with no addresses widens the address filter to any contract.
func LogFilter(contracts map[string][]string) ([]common.Address, []common.Hash, error) {
	kinds := make([]string, 0, len(contracts))
	for kind := range contracts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var (
		rawAddresses []string
		topics       []common.Hash
		anyAddress   bool
		seenTopic    = make(map[common.Hash]struct{})
	)
	for _, kind := range kinds {
		kindTopics, err := protocol.EventTopics(kind)
		if err != nil {
			return nil, nil, err
		}
		for _, topic := range kindTopics {
			if _, ok := seenTopic[topic]; ok {
				continue
			}
			seenTopic[topic] = struct{}{}
			topics = append(topics, topic)
		}
		if len(contracts[kind]) == 0 {
			anyAddress = true
		}
		rawAddresses = append(rawAddresses, contracts[kind]...)
	}

	if anyAddress {
		return nil, topics, nil
	}
	addresses, err := ParseAddresses(rawAddresses)
	if err != nil {
		return nil, nil, err
	}
	return addresses, topics, nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// getContracts reads the kind → addresses map. From a config file it may be
// a map of kind to one address or a list; from flags or env it is a
// comma-separated list of kind=address pairs where a kind may repeat.
func getContracts(v *viper.Viper, key string) (map[string][]string, error) {
	out := make(map[string][]string)
	if !v.IsSet(key) {
		return out, nil
	}

	switch typed := v.Get(key).(type) {
	case map[string]interface{}:
		for kind, val := range typed {
			switch addrs := val.(type) {
			case string:
				out[kind] = splitAndClean(addrs)
			case []interface{}:
				items := make([]string, 0, len(addrs))
				for _, item := range addrs {
					items = append(items, fmt.Sprintf("%v", item))
				}
				out[kind] = cleanStrings(items)
			default:
				return nil, fmt.Errorf("invalid %s entry for %s: %v", key, kind, val)
			}
		}
		return out, nil
	case map[string]string:
		for kind, addrs := range typed {
			out[kind] = splitAndClean(addrs)
		}
		return out, nil
	case string:
		return parseContractPairs(splitAndClean(typed))
	case []string:
		return parseContractPairs(cleanStrings(typed))
	case []interface{}:
		return parseContractPairs(getStringSlice(v, key))
	default:
		return nil, fmt.Errorf("invalid %s value: %v", key, typed)
	}
}

func parseContractPairs(pairs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid contract %q (want kind=address)", pair)
		}
		kind := strings.TrimSpace(parts[0])
		addr := strings.ToLower(strings.TrimSpace(parts[1]))
		if kind == "" {
			return nil, fmt.Errorf("invalid contract %q (empty kind)", pair)
		}
		if addr == "" {
			if _, ok := out[kind]; !ok {
				out[kind] = nil
			}
			continue
		}
		out[kind] = append(out[kind], addr)
	}
	return out, nil
}

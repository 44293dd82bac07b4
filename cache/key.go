package cache

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/zeebo/xxh3"
)

// Key builds "prefix:<hash of vars>:<token>". vars are serialized with
// encoding/json, which sorts map keys, so equal maps hash equally.
func Key(prefix string, vars map[string]interface{}, token string) (string, error) {
	encoded, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key vars: %w", err)
	}
	return prefix + ":" + strconv.FormatUint(xxh3.Hash(encoded), 16) + ":" + token, nil
}

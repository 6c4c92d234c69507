package migrations

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/ap-bundler/storage"
)

// RebuildSubmissionCounters recounts the submission records of every account
// and fixes counters that drifted, e.g. after a restore of a partial backup.
func RebuildSubmissionCounters(db storage.Storage) (int, error) {
	keys, err := db.ListKeys("sub:")
	if err != nil {
		return 0, fmt.Errorf("list submissions: %w", err)
	}

	counts := map[common.Address]uint64{}
	for _, key := range keys {
		// sub:<account>:<id>
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 || !common.IsHexAddress(parts[1]) {
			continue
		}
		counts[common.HexToAddress(parts[1])]++
	}

	updated := 0
	for account, n := range counts {
		key := storage.SubmissionCounterKey(account)
		current, err := db.GetCounter(key, 0)
		if err != nil {
			return updated, err
		}
		if current == n {
			continue
		}
		if err := db.SetCounter(key, n); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

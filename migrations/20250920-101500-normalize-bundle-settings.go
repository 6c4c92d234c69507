package migrations

import (
	"bytes"
	"fmt"

	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/storage"
)

// NormalizeBundleSettings rewrites stored settings in their canonical form:
// fields missing from early records get their default and wrapAmount, null
// or a JSON number before, becomes a decimal string. Records that do not decode are left alone, the store falls back
// to defaults for them.
func NormalizeBundleSettings(db storage.Storage) (int, error) {
	items, err := db.GetByPrefix([]byte("s:"))
	if err != nil {
		return 0, fmt.Errorf("list settings: %w", err)
	}

	updated := 0
	for _, item := range items {
		var settings model.BundleSettings
		if err := settings.FromStorageData(item.Value); err != nil {
			continue
		}
		body, err := settings.ToJSON()
		if err != nil {
			return updated, err
		}
		if bytes.Equal(body, item.Value) {
			continue
		}
		if err := db.Set(item.Key, body); err != nil {
			return updated, fmt.Errorf("rewrite %s: %w", item.Key, err)
		}
		updated++
	}
	return updated, nil
}

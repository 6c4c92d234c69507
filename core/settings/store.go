// Package settings persists the user's bundle settings and hands out
// consistent snapshots to the rebuild loop.
package settings

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"sync"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"

	"github.com/AvaProtocol/ap-bundler/model"
	"github.com/AvaProtocol/ap-bundler/pkg/logger"
	"github.com/AvaProtocol/ap-bundler/storage"
)

// KV is the durable key/value backend. storage.Storage and RedisKV satisfy
// it.
type KV interface {
	GetKey(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

type Store struct {
	kv      KV
	key     []byte
	logger  sdklogging.Logger
	mu      sync.RWMutex
	current model.BundleSettings
}

// NewStore loads the settings persisted for account, falling back to the
// defaults.
func NewStore(kv KV, account common.Address, log sdklogging.Logger) *Store {
	s := &Store{
		kv:     kv,
		key:    storage.SettingsKey(account),
		logger: logger.EnsureLogger(log),
	}
	s.Load()
	return s
}

// Load reads the persisted settings. Nothing stored, a backend failure or a
// record that does not decode all give the defaults.
func (s *Store) Load() model.BundleSettings {
	loaded := model.DefaultBundleSettings()

	body, err := s.kv.GetKey(s.key)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
	case err != nil:
		s.logger.Warn("cannot read bundle settings, using defaults", "key", string(s.key), "error", err)
	default:
		var decoded model.BundleSettings
		if err := decoded.FromStorageData(body); err != nil {
			s.logger.Warn("cannot decode bundle settings, using defaults", "key", string(s.key), "error", err)
		} else {
			loaded = decoded
		}
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	return loaded.Clone()
}

// Save overwrites the persisted settings. Flag combinations are not
// validated, consumers resolve them.
func (s *Store) Save(settings model.BundleSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(settings)
}

func (s *Store) saveLocked(settings model.BundleSettings) error {
	body, err := settings.ToJSON()
	if err != nil {
		return err
	}
	if err := s.kv.Set(s.key, body); err != nil {
		return fmt.Errorf("persist bundle settings: %w", err)
	}
	s.current = settings.Clone()
	return nil
}

// Snapshot is a deep copy of the current settings. One rebuild cycle reads
// exactly one snapshot.
func (s *Store) Snapshot() model.BundleSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update applies fn to a copy of the current settings and persists the
// result. Nothing changes if persisting fails.
func (s *Store) Update(fn func(*model.BundleSettings)) (model.BundleSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	fn(&next)
	if err := s.saveLocked(next); err != nil {
		return s.current.Clone(), err
	}
	return next.Clone(), nil
}

// Apply decodes a partial update keyed by the JSON field names, e.g.
// {"noWrap": "true", "wrapAmount": "1000"}, and persists it.
func (s *Store) Apply(patch map[string]interface{}) (model.BundleSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	if err := DecodePatch(patch, &next); err != nil {
		return s.current.Clone(), err
	}
	if err := s.saveLocked(next); err != nil {
		return s.current.Clone(), err
	}
	return next.Clone(), nil
}

// DecodePatch weakly decodes patch into out. Unknown keys are an error.
func DecodePatch(patch map[string]interface{}, out *model.BundleSettings) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       bigIntHook,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(patch); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if out.WrapAmount == nil {
		out.WrapAmount = new(big.Int)
	}
	return nil
}

var (
	bigIntType    = reflect.TypeOf(big.Int{})
	bigIntPtrType = reflect.TypeOf((*big.Int)(nil))
)

// bigIntHook converts patch values into WrapAmount. mapstructure hands a nil
// *big.Int field over as the pointer type but dereferences a set one, so both
// targets are handled.
func bigIntHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != bigIntType && to != bigIntPtrType {
		return data, nil
	}

	n, err := toBigInt(data)
	if err != nil || n == nil {
		return data, err
	}
	if to == bigIntType {
		return *n, nil
	}
	return n, nil
}

// toBigInt returns nil for inputs it does not know, leaving them to
// mapstructure.
func toBigInt(data interface{}) (*big.Int, error) {
	switch v := data.(type) {
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		n, _ := big.NewFloat(v).Int(nil)
		return n, nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	}
	return nil, nil
}

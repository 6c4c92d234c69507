package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
)

type TopUpStrategy string

const (
	TopUpNone   TopUpStrategy = "none"
	TopUpTotal  TopUpStrategy = "total"
	TopUpSingle TopUpStrategy = "single"
)

// WrapPolicy is the effective wrap behaviour once the flags in BundleSettings
// have been reconciled.
type WrapPolicy int

const (
	// WrapNone: never wrap, noWrap wins over every other flag
	WrapNone WrapPolicy = iota
	// WrapAll: wrap the whole native balance of the account
	WrapAll
	// WrapFixed: wrap settings.WrapAmount plus what the action costs
	WrapFixed
)

func (p WrapPolicy) String() string {
	switch p {
	case WrapAll:
		return "wrap_all"
	case WrapFixed:
		return "wrap_fixed"
	default:
		return "no_wrap"
	}
}

// BundleSettings holds the user's bundling policy. It is persisted as JSON and
// reloaded at process start. Invalid flag combinations are not rejected here,
// consumers resolve them through Policy().
type BundleSettings struct {
	Sponsored  bool     `json:"isSponsored"`
	WrapAll    bool     `json:"wrapAll"`
	NoWrap     bool     `json:"noWrap"`
	WrapAmount *big.Int `json:"wrapAmount"`

	TopUpStrategy              TopUpStrategy `json:"topUpStrategy"`
	TopUpTotalDigitsSelection  int           `json:"topUpTotalDigitsSelection"`
	TopUpTotalSelection        string        `json:"topUpTotalSelection"`
	TopUpSingleDigitsSelection int           `json:"topUpSingleDigitsSelection"`
	TopUpSingleSelection       string        `json:"topUpSingleSelection"`
}

func DefaultBundleSettings() BundleSettings {
	return BundleSettings{
		Sponsored:                  true,
		WrapAll:                    true,
		NoWrap:                     false,
		WrapAmount:                 new(big.Int),
		TopUpStrategy:              TopUpNone,
		TopUpTotalDigitsSelection:  0,
		TopUpTotalSelection:        "Months",
		TopUpSingleDigitsSelection: 0,
		TopUpSingleSelection:       "Months",
	}
}

// Clone returns a deep copy, WrapAmount included.
func (s BundleSettings) Clone() BundleSettings {
	out := s
	out.WrapAmount = s.WrapAmountOrZero()
	return out
}

func (s BundleSettings) WrapAmountOrZero() *big.Int {
	if s.WrapAmount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.WrapAmount)
}

func (s BundleSettings) Policy() WrapPolicy {
	switch {
	case s.NoWrap:
		return WrapNone
	case s.WrapAll:
		return WrapAll
	default:
		return WrapFixed
	}
}

// MarshalJSON writes WrapAmount as a decimal string, a JSON number can't
// carry a wei amount safely.
func (s BundleSettings) MarshalJSON() ([]byte, error) {
	type alias BundleSettings
	return json.Marshal(struct {
		alias
		WrapAmount string `json:"wrapAmount"`
	}{
		alias:      alias(s),
		WrapAmount: s.WrapAmountOrZero().String(),
	})
}

// UnmarshalJSON takes WrapAmount as a decimal string or, for records written
// before it was a string, a JSON number. Null or a missing wrapAmount leaves
// the current value.
func (s *BundleSettings) UnmarshalJSON(body []byte) error {
	type alias BundleSettings
	aux := struct {
		*alias
		WrapAmount json.RawMessage `json:"wrapAmount"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(body, &aux); err != nil {
		return err
	}
	if len(aux.WrapAmount) == 0 || string(aux.WrapAmount) == "null" {
		return nil
	}

	raw := string(aux.WrapAmount)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("wrapAmount %s is not an integer", aux.WrapAmount)
	}
	s.WrapAmount = n
	return nil
}

func (s BundleSettings) ToJSON() ([]byte, error) {
	return json.Marshal(s.Clone())
}

// FromStorageData decodes persisted settings over the defaults so fields added
// later keep a sane value for old records.
func (s *BundleSettings) FromStorageData(body []byte) error {
	decoded := DefaultBundleSettings()
	if err := json.Unmarshal(body, &decoded); err != nil {
		return err
	}
	if decoded.WrapAmount == nil {
		decoded.WrapAmount = new(big.Int)
	}
	if decoded.TopUpStrategy == "" {
		decoded.TopUpStrategy = TopUpNone
	}

	*s = decoded
	return nil
}

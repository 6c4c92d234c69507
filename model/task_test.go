package model

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayTaskAdvance(t *testing.T) {
	t.Run("moves forward through executing to success", func(t *testing.T) {
		task := NewRelayTask("0x01")
		require.NoError(t, task.Advance(TaskExecuting))
		require.NoError(t, task.Advance(TaskSuccess))
		assert.True(t, task.IsTerminal())
	})

	t.Run("cannot go back to pending", func(t *testing.T) {
		task := NewRelayTask("0x02")
		require.NoError(t, task.Advance(TaskExecuting))
		assert.Error(t, task.Advance(TaskPending))
		assert.Equal(t, TaskExecuting, task.State)
	})

	t.Run("terminal state is sticky", func(t *testing.T) {
		task := NewRelayTask("0x03")
		require.NoError(t, task.Advance(TaskReverted))
		assert.Error(t, task.Advance(TaskSuccess))
		assert.NoError(t, task.Advance(TaskReverted))
		assert.Equal(t, TaskReverted, task.State)
	})

	t.Run("unknown state", func(t *testing.T) {
		task := NewRelayTask("0x04")
		assert.Error(t, task.Advance(TaskState("Exploded")))
	})
}

func TestHashBundle(t *testing.T) {
	a := NewCall(common.HexToAddress("0xa"), big.NewInt(1), []byte{0x01}, OperationCall, LabelWrap)
	b := NewCall(common.HexToAddress("0xb"), big.NewInt(0), []byte{0x02}, OperationCall, LabelBusiness)

	assert.Equal(t, common.Hash{}, HashBundle(nil))
	assert.Equal(t, HashBundle(Bundle{a, b}), HashBundle(Bundle{a, b}.Clone()))
	assert.NotEqual(t, HashBundle(Bundle{a, b}), HashBundle(Bundle{b, a}))

	est := ZeroEstimate(common.Address{}, HashBundle(Bundle{a, b}))
	assert.True(t, est.Matches(HashBundle(Bundle{a, b})))
	assert.False(t, est.Matches(HashBundle(Bundle{b, a})))
	assert.True(t, est.IsZero())
}

func TestNewCallCopiesInputs(t *testing.T) {
	data := []byte{0xde, 0xad}
	value := big.NewInt(5)
	call := NewCall(common.HexToAddress("0x1"), value, data, OperationCall, LabelBusiness)

	data[0] = 0x00
	value.SetInt64(6)

	assert.Equal(t, []byte{0xde, 0xad}, call.Data)
	assert.Equal(t, int64(5), call.Value.Int64())
	assert.True(t, call.Populated())
	assert.False(t, NewCall(common.Address{}, nil, data, OperationCall, LabelApprove).Populated())
}

func TestBundleSettingsPolicy(t *testing.T) {
	s := DefaultBundleSettings()
	assert.Equal(t, WrapAll, s.Policy())

	s.NoWrap = true
	assert.Equal(t, WrapNone, s.Policy(), "noWrap wins over wrapAll")

	s.NoWrap, s.WrapAll = false, false
	assert.Equal(t, WrapFixed, s.Policy())
}

func TestBundleSettingsStorageRoundTrip(t *testing.T) {
	s := DefaultBundleSettings()
	s.WrapAll = false
	s.WrapAmount = big.NewInt(1_000_000_000)
	s.TopUpStrategy = TopUpSingle

	body, err := s.ToJSON()
	require.NoError(t, err)

	assert.Contains(t, string(body), `"wrapAmount":"1000000000"`)

	var loaded BundleSettings
	require.NoError(t, loaded.FromStorageData(body))
	assert.Equal(t, "1000000000", loaded.WrapAmount.String())
	assert.Equal(t, TopUpSingle, loaded.TopUpStrategy)

	var partial BundleSettings
	require.NoError(t, partial.FromStorageData([]byte(`{"noWrap":true}`)))
	assert.True(t, partial.NoWrap)
	assert.True(t, partial.Sponsored, "missing fields keep their default")
	assert.NotNil(t, partial.WrapAmount)

	var legacy BundleSettings
	require.NoError(t, legacy.FromStorageData([]byte(`{"wrapAmount":123456789012345678901234}`)))
	assert.Equal(t, "123456789012345678901234", legacy.WrapAmount.String())

	assert.Error(t, legacy.FromStorageData([]byte(`{"wrapAmount":"1.5"}`)))
}

func TestSanitizeError(t *testing.T) {
	cases := []struct {
		in   error
		want string
	}{
		{errors.New("execution reverted: Ownable: caller is not the owner"), "Ownable: caller is not the owner"},
		{errors.New("Error: VM Exception while processing transaction: reverted with reason string 'GS013'"), "GS013"},
		{fmt.Errorf("send: %w", errors.New("execution reverted: CFA: not enough\nstack...")), "CFA: not enough"},
		{errors.New("execution reverted"), GenericSubmitError},
		{&RelayError{TaskID: "1", State: TaskReverted, Message: "execution reverted: GS026"}, "GS026"},
		{&NetworkError{Op: "submit", StatusCode: 502}, GenericSubmitError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeError(tc.in), tc.in.Error())
	}
	assert.Equal(t, "", SanitizeError(nil))
}

package encoder

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-bundler/core/chainio/safe"
	"github.com/AvaProtocol/ap-bundler/core/chainio/signer"
	"github.com/AvaProtocol/ap-bundler/core/testutil"
	"github.com/AvaProtocol/ap-bundler/model"
)

type fixedQuoter struct {
	fee   *big.Int
	calls int
}

func (q *fixedQuoter) EstimatedFee(ctx context.Context, chainID *big.Int, feeToken common.Address, gasLimit, gasLimitL1 *big.Int) (*big.Int, error) {
	q.calls++
	return new(big.Int).Set(q.fee), nil
}

type fixedNonce struct{ nonce int64 }

func (n fixedNonce) Nonce(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(n.nonce), nil
}

type rejectingSigner struct{ signer.Signer }

func (rejectingSigner) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	return nil, signer.ErrRejected
}

func testContracts() Contracts {
	return Contracts{
		Singleton:         testutil.SafeSingleton,
		ProxyFactory:      testutil.ProxyFactory,
		FallbackHandler:   testutil.FallbackHandler,
		MultiSend:         testutil.MultiSend,
		SponsorCollector:  testutil.SponsorCollector,
		RelayFeeCollector: testutil.RelayFeeCollector,
	}
}

func newTestEncoder(t *testing.T, s signer.Signer, quoter FeeQuoter) (*Encoder, *testutil.FakeChain) {
	t.Helper()
	chain := testutil.NewFakeChain()
	if s == nil {
		s = signer.NewPrivateKeySigner(testutil.OwnerKey())
	}
	if quoter == nil {
		quoter = &fixedQuoter{fee: big.NewInt(5_000)}
	}
	return New(Config{Contracts: testContracts(), ChainID: testutil.ChainID}, chain, s, quoter, fixedNonce{nonce: 7}, nil), chain
}

func TestEncodeMultiSendLayout(t *testing.T) {
	call := model.NewCall(common.HexToAddress("0x11"), big.NewInt(2), []byte{0xaa, 0xbb, 0xcc}, model.OperationCall, model.LabelBusiness)
	out := EncodeMultiSend([]model.Call{call})

	require.Len(t, out, 1+20+32+32+3)
	assert.Equal(t, byte(0), out[0])
	assert.Equal(t, call.To.Bytes(), out[1:21])
	assert.Equal(t, int64(2), new(big.Int).SetBytes(out[21:53]).Int64())
	assert.Equal(t, int64(3), new(big.Int).SetBytes(out[53:85]).Int64())
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, out[85:])

	assert.Empty(t, EncodeMultiSend(nil))
}

func TestEncodeMultiSendOrderInjective(t *testing.T) {
	a := model.NewCall(common.HexToAddress("0xa"), nil, []byte{0x01}, model.OperationCall, model.LabelApprove)
	b := model.NewCall(common.HexToAddress("0xb"), nil, []byte{0x02}, model.OperationCall, model.LabelFlowAllowance)
	c := model.NewCall(common.HexToAddress("0xc"), nil, []byte{0x03, 0x04}, model.OperationCall, model.LabelBusiness)

	orders := [][]model.Call{{a, b, c}, {b, a, c}, {a, c, b}, {c, b, a}}
	seen := map[string]bool{}
	for _, order := range orders {
		enc := string(EncodeMultiSend(order))
		assert.False(t, seen[enc], "two orders produced the same bytes")
		seen[enc] = true
	}

	// same target, different data still differs when swapped
	x := model.NewCall(common.HexToAddress("0xa"), nil, []byte{0x01}, model.OperationCall, model.LabelBusiness)
	y := model.NewCall(common.HexToAddress("0xa"), nil, []byte{0x02}, model.OperationCall, model.LabelBusiness)
	assert.False(t, bytes.Equal(EncodeMultiSend([]model.Call{x, y}), EncodeMultiSend([]model.Call{y, x})))
}

func TestExecutionCall(t *testing.T) {
	enc, _ := newTestEncoder(t, nil, nil)
	single := model.NewCall(common.HexToAddress("0xa"), nil, []byte{0x01}, model.OperationCall, model.LabelBusiness)

	got, err := enc.ExecutionCall(model.Bundle{single})
	require.NoError(t, err)
	assert.Equal(t, single, got)

	got, err = enc.ExecutionCall(model.Bundle{single, single})
	require.NoError(t, err)
	assert.Equal(t, testutil.MultiSend, got.To)
	assert.Equal(t, model.OperationDelegateCall, got.Operation)

	_, err = enc.ExecutionCall(nil)
	assert.Error(t, err)
}

func TestEncodeDeployment(t *testing.T) {
	enc, _ := newTestEncoder(t, nil, nil)
	account := model.NewDelegatedAccount(testutil.Account, testutil.Owner())

	call, err := enc.EncodeDeployment(account)
	require.NoError(t, err)
	assert.Equal(t, testutil.ProxyFactory, call.To)
	assert.Equal(t, model.LabelDeploy, call.Label)

	again, err := enc.EncodeDeployment(account)
	require.NoError(t, err)
	assert.Equal(t, call.Data, again.Data, "salt is deterministic")

	salt := enc.SaltFor(account.Owners)
	assert.Equal(t, new(big.Int).SetBytes(crypto.Keccak256(testutil.Owner().Bytes())), salt)

	_, err = enc.EncodeDeployment(&model.DelegatedAccount{Address: testutil.Account})
	assert.Error(t, err)
}

func TestPredictAddressCachesCreationCode(t *testing.T) {
	enc, chain := newTestEncoder(t, nil, nil)
	outputs := safe.ProxyFactoryMetaData
	parsed, err := outputs.GetAbi()
	require.NoError(t, err)
	ret, err := parsed.Methods["proxyCreationCode"].Outputs.Pack([]byte{0x60, 0x80})
	require.NoError(t, err)
	chain.CallHandler = func(msg ethereum.CallMsg) ([]byte, error) { return ret, nil }

	owners := []common.Address{testutil.Owner()}
	first, err := enc.PredictAddress(context.Background(), owners)
	require.NoError(t, err)
	second, err := enc.PredictAddress(context.Background(), owners)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, chain.CallCount())
}

func TestBuildSafeTx(t *testing.T) {
	quoter := &fixedQuoter{fee: big.NewInt(5_000)}
	enc, _ := newTestEncoder(t, nil, quoter)
	call := model.NewCall(testutil.MultiSend, nil, []byte{0x01}, model.OperationDelegateCall, model.LabelMultiSend)

	t.Run("auto refund sponsored", func(t *testing.T) {
		tx, err := enc.BuildSafeTx(context.Background(), call, ExecuteOptions{
			Account:    testutil.Account,
			GasLimit:   big.NewInt(100_000),
			AutoRefund: true,
			FeeToken:   testutil.FeeToken,
			Sponsored:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, "120000", tx.SafeTxGas.String())
		assert.Equal(t, "5000", tx.BaseGas.String())
		assert.Equal(t, "1", tx.GasPrice.String())
		assert.Equal(t, testutil.SponsorCollector, tx.RefundReceiver)
		assert.Equal(t, testutil.FeeToken, tx.GasToken)
		assert.Equal(t, int64(7), tx.Nonce.Int64())
	})

	t.Run("no refund unsponsored", func(t *testing.T) {
		before := quoter.calls
		tx, err := enc.BuildSafeTx(context.Background(), call, ExecuteOptions{
			Account:  testutil.Account,
			GasLimit: big.NewInt(100_000),
			Nonce:    big.NewInt(1),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, tx.BaseGas.Sign())
		assert.Equal(t, 0, tx.GasPrice.Sign())
		assert.Equal(t, testutil.RelayFeeCollector, tx.RefundReceiver)
		assert.Equal(t, int64(1), tx.Nonce.Int64())
		assert.Equal(t, before, quoter.calls)
	})
}

func TestEncodeExecuteSignsSafeTx(t *testing.T) {
	enc, _ := newTestEncoder(t, nil, nil)
	call := model.NewCall(common.HexToAddress("0xa"), nil, []byte{0x01}, model.OperationCall, model.LabelBusiness)
	opts := ExecuteOptions{Account: testutil.Account, GasLimit: big.NewInt(50_000), FeeToken: testutil.FeeToken}

	data, err := enc.EncodeExecute(context.Background(), call, opts)
	require.NoError(t, err)

	parsed, err := safe.SafeMetaData.GetAbi()
	require.NoError(t, err)
	method, err := parsed.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "execTransaction", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	sig := args[9].([]byte)

	tx, err := enc.BuildSafeTx(context.Background(), call, opts)
	require.NoError(t, err)
	owner, err := signer.Recover(enc.SafeTxHash(tx, testutil.Account), sig)
	require.NoError(t, err)
	assert.Equal(t, testutil.Owner(), owner)
}

func TestEncodeExecuteRejected(t *testing.T) {
	enc, _ := newTestEncoder(t, rejectingSigner{}, nil)
	call := model.NewCall(common.HexToAddress("0xa"), nil, []byte{0x01}, model.OperationCall, model.LabelBusiness)

	_, err := enc.EncodeExecute(context.Background(), call, ExecuteOptions{Account: testutil.Account, GasLimit: big.NewInt(1)})
	var rejected *model.SigningRejected
	require.ErrorAs(t, err, &rejected)
	assert.ErrorIs(t, err, signer.ErrRejected)
}

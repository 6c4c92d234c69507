package signer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestPrivateKeySigner(t *testing.T) {
	s, err := FromPrivateKeyHex(testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	hash := crypto.Keccak256Hash([]byte("safe tx"))
	sig, err := s.SignHash(context.Background(), hash)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	signer, err := Recover(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), signer)
}

func TestPrivateKeySignerCancelled(t *testing.T) {
	s, err := FromPrivateKeyHex(testKey)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SignHash(ctx, common.Hash{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPromptSigner(t *testing.T) {
	base, err := FromPrivateKeyHex(testKey)
	require.NoError(t, err)
	hash := crypto.Keccak256Hash([]byte("prompt"))

	var out bytes.Buffer
	accept := &PromptSigner{Signer: base, In: strings.NewReader("y\n"), Out: &out}
	sig, err := accept.SignHash(context.Background(), hash)
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.Contains(t, out.String(), hash.Hex())

	for _, answer := range []string{"n\n", "\n", ""} {
		reject := &PromptSigner{Signer: base, In: strings.NewReader(answer), Out: &out}
		_, err = reject.SignHash(context.Background(), hash)
		assert.ErrorIs(t, err, ErrRejected, "answer %q", answer)
	}
}

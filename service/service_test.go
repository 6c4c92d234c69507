package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-bundler/core/chainio/signer"
	"github.com/AvaProtocol/ap-bundler/core/config"
	"github.com/AvaProtocol/ap-bundler/core/testutil"
)

type countingSigner struct {
	signer.Signer
	calls int
}

func (c *countingSigner) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	c.calls++
	return c.Signer.SignHash(ctx, hash)
}

func TestBuildSignerFromConfigKey(t *testing.T) {
	svc := &Service{config: &config.Config{OwnerPrivateKey: testutil.OwnerKey()}, logger: testutil.GetLogger()}

	s, err := svc.buildSigner(Options{})
	require.NoError(t, err)
	assert.Equal(t, testutil.Owner(), s.Address())
}

func TestBuildSignerWrapsOverride(t *testing.T) {
	svc := &Service{config: &config.Config{}, logger: testutil.GetLogger()}

	var wrapped *countingSigner
	s, err := svc.buildSigner(Options{
		Signer: signer.NewPrivateKeySigner(testutil.OwnerKey()),
		WrapSigner: func(inner signer.Signer) signer.Signer {
			wrapped = &countingSigner{Signer: inner}
			return wrapped
		},
	})
	require.NoError(t, err)

	_, err = s.SignHash(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, 1, wrapped.calls)
}

func TestBuildSignerNeedsKey(t *testing.T) {
	svc := &Service{config: &config.Config{}, logger: testutil.GetLogger()}

	_, err := svc.buildSigner(Options{})
	assert.ErrorContains(t, err, "owner_private_key")
}

func TestSettingsKVDefaultsToBadger(t *testing.T) {
	db := testutil.TestMustDB(t)
	svc := &Service{config: &config.Config{SettingsBackend: config.SettingsBackendBadger}, db: db, logger: testutil.GetLogger()}

	kv, err := svc.settingsKV()
	require.NoError(t, err)
	assert.Same(t, db, kv)
	assert.Nil(t, svc.redis)
}

func TestCloseOnPartialService(t *testing.T) {
	svc := &Service{config: &config.Config{}, logger: testutil.GetLogger()}
	assert.NotPanics(t, svc.Close)
	assert.False(t, svc.IsShutdown())
}

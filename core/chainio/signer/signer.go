package signer

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrRejected is returned when the owner declines to sign.
var ErrRejected = errors.New("signature request rejected")

// Signer produces the owner signature over a safe transaction hash.
type Signer interface {
	Address() common.Address
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
}

type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func FromPrivateKeyHex(privateKeyHex string) (*PrivateKeySigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, err
	}

	return NewPrivateKeySigner(privateKey), nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

// SignHash signs the raw 32 byte hash. The account contract expects v in
// {27, 28}.
func (s *PrivateKeySigner) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27

	return sig, nil
}

// PromptSigner asks for confirmation on Out and reads the answer from In
// before delegating to the wrapped signer. Anything but "y" rejects.
type PromptSigner struct {
	Signer
	In  io.Reader
	Out io.Writer
}

func (p *PromptSigner) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	fmt.Fprintf(p.Out, "Sign transaction %s as %s? [y/N]: ", hash.Hex(), p.Address().Hex())

	answer, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return p.Signer.SignHash(ctx, hash)
	default:
		return nil, ErrRejected
	}
}

// Recover returns the address that produced sig over hash.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}

	normalized := common.CopyBytes(sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/ports"
	"github.com/shopspring/decimal"
)

// registerCredential(address wallet, bytes32 x, bytes32 y, bytes32 credentialId)
var registerCredentialSelector = selector("registerCredential(address,bytes32,bytes32,bytes32)")

// registerGasLimit bounds the registration call.
const registerGasLimit = 250_000

// TxClient is the state-changing call primitive the mirror consumes.
// *ethclient.Client satisfies it.
type TxClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Mirror submits credential bindings to the on-chain registry. Every error
// it returns is absorbed by the mirror worker; nothing here can reach a
// registration caller.
type Mirror struct {
	client     TxClient
	signKey    *ecdsa.PrivateKey
	signerAddr common.Address
	registry   common.Address
	chainID    *big.Int
	minBalance *big.Int
	log        *slog.Logger
}

// NewMirror creates a mirror client. minBalance is in native-currency units
// (e.g. "0.01"); the signer must hold at least that much before any attempt
// is made. A nil client or signKey keeps the mirror permanently skipping.
func NewMirror(client TxClient, signKey *ecdsa.PrivateKey, registry common.Address,
	chainID *big.Int, minBalance decimal.Decimal, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	m := &Mirror{
		client:     client,
		signKey:    signKey,
		registry:   registry,
		chainID:    chainID,
		minBalance: minBalance.Mul(decimal.New(1, 18)).BigInt(), // native units -> wei
		log:        log,
	}
	if signKey != nil {
		m.signerAddr = crypto.PubkeyToAddress(signKey.PublicKey)
	}
	return m
}

// Register submits one credential binding. An already-registered wallet
// surfaces as ports.ErrAlreadyRegistered; unmet preconditions as
// ports.ErrMirrorSkipped.
func (m *Mirror) Register(ctx context.Context, job ports.MirrorJob) (core.ChainInfo, error) {
	if m.client == nil || m.signKey == nil || m.registry == (common.Address{}) {
		return core.ChainInfo{}, ports.ErrMirrorSkipped
	}

	balance, err := m.client.BalanceAt(ctx, m.signerAddr, nil)
	if err != nil {
		return core.ChainInfo{}, fmt.Errorf("signer balance: %w", err)
	}
	if balance.Cmp(m.minBalance) < 0 {
		m.log.Warn("mirror signer below minimum balance, skipping",
			"signer", m.signerAddr.Hex(), "balance_wei", balance.String())
		return core.ChainInfo{}, ports.ErrMirrorSkipped
	}

	nonce, err := m.client.PendingNonceAt(ctx, m.signerAddr)
	if err != nil {
		return core.ChainInfo{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		return core.ChainInfo{}, fmt.Errorf("suggest gas price: %w", err)
	}

	cred := credentialWord(job.CredentialIdentifier)
	data := make([]byte, 0, 4+4*wordSize)
	data = append(data, registerCredentialSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(job.WalletAddress).Bytes(), wordSize)...)
	data = append(data, job.X[:]...)
	data = append(data, job.Y[:]...)
	data = append(data, cred[:]...)

	tx := types.NewTransaction(nonce, m.registry, big.NewInt(0), registerGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(m.chainID), m.signKey)
	if err != nil {
		return core.ChainInfo{}, fmt.Errorf("sign registration tx: %w", err)
	}

	if err := m.client.SendTransaction(ctx, signed); err != nil {
		if isAlreadyRegistered(err) {
			return core.ChainInfo{}, ports.ErrAlreadyRegistered
		}
		return core.ChainInfo{}, fmt.Errorf("send registration tx: %w", err)
	}

	return core.ChainInfo{TxHash: signed.Hash().Hex(), Status: "submitted"}, nil
}

// isAlreadyRegistered recognizes the registry's duplicate-binding revert.
func isAlreadyRegistered(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already registered")
}

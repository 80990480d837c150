package chain

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// getWalletAddress(bytes32 x, bytes32 y, bytes32 credentialId) -> address
var getWalletAddressSelector = selector("getWalletAddress(bytes32,bytes32,bytes32)")

// ContractCaller is the read-only call primitive the resolver consumes.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver derives the deterministic smart-wallet address for a credential's
// public key. The primary path asks the factory contract; when no factory is
// configured or the call fails it falls back to a local pseudo-address that
// no real factory would deploy to, suitable for offline operation only.
type Resolver struct {
	client  ContractCaller
	factory common.Address
	log     *slog.Logger
}

// NewResolver creates a resolver. A nil client or zero factory address puts
// the resolver permanently on the fallback path.
func NewResolver(client ContractCaller, factory common.Address, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{client: client, factory: factory, log: log}
}

// Resolve returns the checksummed wallet address for (x, y, credentialID).
func (r *Resolver) Resolve(ctx context.Context, x, y [32]byte, credentialIdentifier string) (string, error) {
	if r.client == nil || r.factory == (common.Address{}) {
		return r.fallback(x, y), nil
	}

	cred := credentialWord(credentialIdentifier)
	data := make([]byte, 0, 4+3*wordSize)
	data = append(data, getWalletAddressSelector...)
	data = append(data, x[:]...)
	data = append(data, y[:]...)
	data = append(data, cred[:]...)

	ret, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.factory, Data: data}, nil)
	if err != nil || len(ret) < wordSize {
		r.log.Warn("factory address lookup failed, using offline fallback",
			"factory", r.factory.Hex(), "err", err)
		return r.fallback(x, y), nil
	}

	// The address sits in the low 20 bytes of the returned word.
	return common.BytesToAddress(ret[wordSize-common.AddressLength : wordSize]).Hex(), nil
}

// fallback derives a deterministic pseudo-address from the key material
// alone. Its output is NOT a contract-enforced wallet; the loud log line is
// the operational marker that this deployment is running offline.
func (r *Resolver) fallback(x, y [32]byte) string {
	digest := crypto.Keccak256(x[:], y[:])
	addr := common.BytesToAddress(digest[len(digest)-common.AddressLength:])
	r.log.Warn("derived offline pseudo wallet address", "address", addr.Hex())
	return addr.Hex()
}

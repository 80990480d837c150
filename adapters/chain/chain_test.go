package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalis-labs/keygate/ports"
)

type fakeCaller struct {
	lastMsg ethereum.CallMsg
	ret     []byte
	err     error
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.lastMsg = msg
	return f.ret, f.err
}

func testJob() ports.MirrorJob {
	job := ports.MirrorJob{
		CredentialID:         "db-cred-1",
		IdentityID:           "identity-1",
		WalletAddress:        "0x00000000000000000000000000000000000000aa",
		CredentialIdentifier: "cred-1",
	}
	for i := range job.X {
		job.X[i] = byte(i)
		job.Y[i] = byte(i * 2)
	}
	return job
}

func TestResolveViaFactory(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	caller := &fakeCaller{ret: common.LeftPadBytes(want.Bytes(), 32)}
	factory := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	job := testJob()
	r := NewResolver(caller, factory, nil)
	got, err := r.Resolve(context.Background(), job.X, job.Y, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, want.Hex(), got)

	// Calldata is selector plus three packed words.
	require.Len(t, caller.lastMsg.Data, 4+96)
	assert.Equal(t, getWalletAddressSelector, caller.lastMsg.Data[:4])
	assert.Equal(t, job.X[:], caller.lastMsg.Data[4:36])
	assert.Equal(t, job.Y[:], caller.lastMsg.Data[36:68])

	var credWord [32]byte
	copy(credWord[:], "cred-1")
	assert.Equal(t, credWord[:], caller.lastMsg.Data[68:100])
	assert.Equal(t, factory, *caller.lastMsg.To)
}

func TestResolveFallsBackOnCallFailure(t *testing.T) {
	caller := &fakeCaller{err: errors.New("rpc unreachable")}
	factory := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	job := testJob()
	r := NewResolver(caller, factory, nil)
	got, err := r.Resolve(context.Background(), job.X, job.Y, "cred-1")
	require.NoError(t, err)

	digest := crypto.Keccak256(job.X[:], job.Y[:])
	want := common.BytesToAddress(digest[12:]).Hex()
	assert.Equal(t, want, got)
}

func TestResolveOfflineIsDeterministic(t *testing.T) {
	job := testJob()
	r := NewResolver(nil, common.Address{}, nil)

	first, err := r.Resolve(context.Background(), job.X, job.Y, "cred-1")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), job.X, job.Y, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := r.Resolve(context.Background(), job.Y, job.X, "cred-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

type fakeTxClient struct {
	balance *big.Int
	sendErr error
	sent    *types.Transaction
}

func (f *fakeTxClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeTxClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 3, nil
}

func (f *fakeTxClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeTxClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent = tx
	return f.sendErr
}

func newTestMirror(t *testing.T, client TxClient) *Mirror {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	registry := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	return NewMirror(client, key, registry, big.NewInt(1), decimal.RequireFromString("0.01"), nil)
}

func TestMirrorRegisterSubmits(t *testing.T) {
	oneEth, _ := new(big.Int).SetString("1000000000000000000", 10)
	client := &fakeTxClient{balance: oneEth}
	m := newTestMirror(t, client)

	info, err := m.Register(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, "submitted", info.Status)
	assert.NotEmpty(t, info.TxHash)

	require.NotNil(t, client.sent)
	data := client.sent.Data()
	require.Len(t, data, 4+128)
	assert.Equal(t, registerCredentialSelector, data[:4])
}

func TestMirrorSkipsOnLowBalance(t *testing.T) {
	client := &fakeTxClient{balance: big.NewInt(1)} // 1 wei
	m := newTestMirror(t, client)

	_, err := m.Register(context.Background(), testJob())
	assert.ErrorIs(t, err, ports.ErrMirrorSkipped)
	assert.Nil(t, client.sent)
}

func TestMirrorSkipsWhenUnconfigured(t *testing.T) {
	m := NewMirror(nil, nil, common.Address{}, big.NewInt(1), decimal.Zero, nil)

	_, err := m.Register(context.Background(), testJob())
	assert.ErrorIs(t, err, ports.ErrMirrorSkipped)
}

func TestMirrorAlreadyRegistered(t *testing.T) {
	oneEth, _ := new(big.Int).SetString("1000000000000000000", 10)
	client := &fakeTxClient{
		balance: oneEth,
		sendErr: errors.New("execution reverted: wallet already registered"),
	}
	m := newTestMirror(t, client)

	_, err := m.Register(context.Background(), testJob())
	assert.ErrorIs(t, err, ports.ErrAlreadyRegistered)
}

func TestCredentialWordTruncatesLongIdentifier(t *testing.T) {
	long := make([]byte, 48)
	for i := range long {
		long[i] = byte(i + 1)
	}

	word := credentialWord(string(long))
	assert.Equal(t, long[:32], word[:])
}

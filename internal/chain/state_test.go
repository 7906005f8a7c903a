package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers by 4-byte selector with ABI-packed outputs.
type fakeCaller struct {
	t       *testing.T
	replies map[string][]byte
	calls   []string
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	selector := common.Bytes2Hex(msg.Data[:4])
	f.calls = append(f.calls, selector)
	out, ok := f.replies[selector]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeCaller) reply(contractABI abi.ABI, method string, values ...interface{}) {
	f.t.Helper()
	m := contractABI.Methods[method]
	out, err := m.Outputs.Pack(values...)
	require.NoError(f.t, err)
	f.replies[common.Bytes2Hex(m.ID)] = out
}

const (
	testContract = "0x4444444444444444444444444444444444444444"
	testOwner    = "0x2222222222222222222222222222222222222222"
	testOperator = "0x3333333333333333333333333333333333333333"
)

func TestFtBalanceAndApproval(t *testing.T) {
	tokenABI, err := tokenStateABIInstance()
	require.NoError(t, err)

	caller := &fakeCaller{t: t, replies: map[string][]byte{}}
	caller.reply(tokenABI, "balanceOf", big.NewInt(5000))
	caller.reply(tokenABI, "isApprovedForAll", true)
	reader := NewStateReader(caller)

	balance, err := reader.FtBalance(context.Background(), testContract, testOwner)
	require.NoError(t, err)
	require.Equal(t, int64(5000), balance.Int64())

	approved, err := reader.NftApproval(context.Background(), testContract, testOwner, testOperator)
	require.NoError(t, err)
	require.True(t, approved)
}

func TestNftBalanceFallsBackToOwnerOf(t *testing.T) {
	tokenABI, err := tokenStateABIInstance()
	require.NoError(t, err)

	caller := &fakeCaller{t: t, replies: map[string][]byte{}}
	caller.reply(tokenABI, "ownerOf", common.HexToAddress(testOwner))
	reader := NewStateReader(caller)

	balance, err := reader.NftBalance(context.Background(), testContract, "7", testOwner)
	require.NoError(t, err)
	require.Equal(t, int64(1), balance.Int64())
	require.Len(t, caller.calls, 2)

	balance, err = reader.NftBalance(context.Background(), testContract, "7", testOperator)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestNftBalancePrefersErc1155(t *testing.T) {
	erc1155, err := erc1155BalanceABIInstance()
	require.NoError(t, err)

	caller := &fakeCaller{t: t, replies: map[string][]byte{}}
	caller.reply(erc1155, "balanceOf", big.NewInt(3))
	reader := NewStateReader(caller)

	balance, err := reader.NftBalance(context.Background(), testContract, "7", testOwner)
	require.NoError(t, err)
	require.Equal(t, int64(3), balance.Int64())
	require.Len(t, caller.calls, 1)

	_, err = reader.NftBalance(context.Background(), testContract, "not-a-number", testOwner)
	require.Error(t, err)
}

func TestCallRejectsBadContract(t *testing.T) {
	reader := NewStateReader(&fakeCaller{t: t, replies: map[string][]byte{}})
	_, err := reader.FtBalance(context.Background(), "weth", testOwner)
	require.Error(t, err)
}

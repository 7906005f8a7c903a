package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const tokenStateABIJSON = `[
  {"inputs": [{"name": "owner", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "tokenId", "type": "uint256"}], "name": "ownerOf", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "owner", "type": "address"}, {"name": "operator", "type": "address"}], "name": "isApprovedForAll", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"}
]`

const erc1155BalanceABIJSON = `[
  {"inputs": [{"name": "account", "type": "address"}, {"name": "id", "type": "uint256"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	tokenStateABI     abi.ABI
	tokenStateABIOnce sync.Once
	tokenStateABIErr  error

	erc1155BalanceABI     abi.ABI
	erc1155BalanceABIOnce sync.Once
	erc1155BalanceABIErr  error
)

func tokenStateABIInstance() (abi.ABI, error) {
	tokenStateABIOnce.Do(func() {
		tokenStateABI, tokenStateABIErr = abi.JSON(strings.NewReader(tokenStateABIJSON))
	})
	return tokenStateABI, tokenStateABIErr
}

func erc1155BalanceABIInstance() (abi.ABI, error) {
	erc1155BalanceABIOnce.Do(func() {
		erc1155BalanceABI, erc1155BalanceABIErr = abi.JSON(strings.NewReader(erc1155BalanceABIJSON))
	})
	return erc1155BalanceABI, erc1155BalanceABIErr
}

// ContractCaller executes read-only contract calls. *Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// StateReader answers balance and approval questions with live eth_calls.
type StateReader struct {
	caller ContractCaller
}

func NewStateReader(caller ContractCaller) *StateReader {
	return &StateReader{caller: caller}
}

// FtBalance calls ERC20 balanceOf.
func (r *StateReader) FtBalance(ctx context.Context, currency, owner string) (*big.Int, error) {
	contractABI, err := tokenStateABIInstance()
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, contractABI, currency, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	return firstBigInt(out)
}

// NftBalance tries ERC1155 balanceOf and falls back to ERC721 ownerOf.
func (r *StateReader) NftBalance(ctx context.Context, contract, tokenID, owner string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}
	ownerAddr := common.HexToAddress(owner)

	erc1155, err := erc1155BalanceABIInstance()
	if err != nil {
		return nil, err
	}
	if out, err := r.call(ctx, erc1155, contract, "balanceOf", ownerAddr, id); err == nil {
		return firstBigInt(out)
	}

	erc721, err := tokenStateABIInstance()
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, erc721, contract, "ownerOf", id)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected ownerOf outputs: %d", len(out))
	}
	holder, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unsupported address type %T", out[0])
	}
	if holder == ownerAddr {
		return big.NewInt(1), nil
	}
	return new(big.Int), nil
}

// NftApproval calls isApprovedForAll.
func (r *StateReader) NftApproval(ctx context.Context, contract, owner, operator string) (bool, error) {
	contractABI, err := tokenStateABIInstance()
	if err != nil {
		return false, err
	}
	out, err := r.call(ctx, contractABI, contract, "isApprovedForAll",
		common.HexToAddress(owner), common.HexToAddress(operator))
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, fmt.Errorf("unexpected isApprovedForAll outputs: %d", len(out))
	}
	approved, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unsupported bool type %T", out[0])
	}
	return approved, nil
}

func (r *StateReader) call(ctx context.Context, contractABI abi.ABI, contract, method string, args ...interface{}) ([]interface{}, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address: %s", contract)
	}
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := common.HexToAddress(contract)
	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func firstBigInt(values []interface{}) (*big.Int, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected outputs: %d", len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unsupported int type %T", values[0])
	}
	return v, nil
}

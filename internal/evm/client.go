package evm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"suibison/internal/wallet"
)

const (
	nativeDecimals = 18
	transferGas    = 21000
)

// Client is the EVM wallet backend. Native coin only.
type Client struct {
	eth *ethclient.Client
}

func New(url string) (*Client, error) {
	eth, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Client{eth: eth}, nil
}

func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

func (c *Client) ValidAddress(address string) bool {
	return IsValidAddress(address)
}

func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !IsValidAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address %q", address)
	}
	wei, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(wei, -nativeDecimals), nil
}

func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) Transfer(ctx context.Context, credential, to string, amount decimal.Decimal) (string, error) {
	if !IsValidAddress(to) {
		return "", fmt.Errorf("invalid address %q", to)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(credential, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	value := ToWei(amount)
	if value.Sign() <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", err
	}
	chainId, err := c.eth.ChainID(ctx)
	if err != nil {
		return "", err
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", err
	}
	toAddr := common.HexToAddress(to)
	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := c.eth.SuggestGasTipCap(ctx)
		if err != nil {
			return "", err
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainId,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       transferGas,
			To:        &toAddr,
			Value:     value,
		})
	} else {
		gasPrice, err := c.GetGasPrice(ctx)
		if err != nil {
			return "", err
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      transferGas,
			To:       &toAddr,
			Value:    value,
		})
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainId), key)
	if err != nil {
		return "", err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

// NewAccount returns a fresh checksummed address and its hex private key.
func (c *Client) NewAccount() (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hex.EncodeToString(crypto.FromECDSA(key)), nil
}

func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(nativeDecimals).Truncate(0).BigInt()
}

var _ wallet.Backend = (*Client)(nil)

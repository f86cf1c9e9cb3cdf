package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"suibison/internal/app"
)

const (
	suiCoinType  = "0x2::sui::SUI"
	suiDecimals  = 9
	ed25519Flag  = 0x00
	defaultGas   = 10_000_000 // MIST
	coinPageSize = 50
)

var ErrInsufficientCoins = errors.New("not enough coins to cover amount and gas")

// Sui talks to a Sui full node over JSON-RPC.
type Sui struct {
	http      *resty.Client
	url       string
	GasBudget int64
	id        atomic.Int64
}

func NewSui(url string) *Sui {
	return &Sui{
		http: resty.New().
			SetTimeout(15*time.Second).
			SetHeader("Content-Type", "application/json"),
		url:       app.RemoveTrailingSlash(url),
		GasBudget: defaultGas,
	}
}

type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Id      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RpcError       `json:"error"`
}

type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type coinPage struct {
	Data []struct {
		CoinObjectId string `json:"coinObjectId"`
		Balance      string `json:"balance"`
	} `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type txBlockResponse struct {
	Digest  string `json:"digest"`
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
}

func (s *Sui) call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{Jsonrpc: "2.0", Id: s.id.Add(1), Method: method, Params: params}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: http status %d", method, resp.StatusCode())
	}
	var out rpcResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if out.Error != nil {
		return fmt.Errorf("%s: %w", method, out.Error)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(out.Result, result)
}

func (s *Sui) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var res struct {
		TotalBalance string `json:"totalBalance"`
	}
	if err := s.call(ctx, "suix_getBalance", &res, address, suiCoinType); err != nil {
		return decimal.Zero, err
	}
	mist, err := decimal.NewFromString(res.TotalBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("suix_getBalance: %w", err)
	}
	return mist.Shift(-suiDecimals), nil
}

// Transfer pays amount from the credential's address to to. Gas is paid from the same coins.
func (s *Sui) Transfer(ctx context.Context, credential, to string, amount decimal.Decimal) (string, error) {
	key, err := suiKey(credential)
	if err != nil {
		return "", err
	}
	from := SuiAddress(key.Public().(ed25519.PublicKey))
	mist := amount.Shift(suiDecimals).Truncate(0)
	if mist.Sign() <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	coins, err := s.selectCoins(ctx, from, mist.Add(decimal.NewFromInt(s.GasBudget)))
	if err != nil {
		return "", err
	}
	var unsigned struct {
		TxBytes string `json:"txBytes"`
	}
	err = s.call(ctx, "unsafe_paySui", &unsigned,
		from, coins, []string{to}, []string{mist.String()}, fmt.Sprint(s.GasBudget))
	if err != nil {
		return "", err
	}
	txBytes, err := base64.StdEncoding.DecodeString(unsigned.TxBytes)
	if err != nil {
		return "", fmt.Errorf("unsafe_paySui: %w", err)
	}
	var res txBlockResponse
	err = s.call(ctx, "sui_executeTransactionBlock", &res,
		unsigned.TxBytes,
		[]string{SignTransaction(key, txBytes)},
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution")
	if err != nil {
		return "", err
	}
	if res.Effects.Status.Status != "success" {
		return res.Digest, fmt.Errorf("transaction %s failed: %s", res.Digest, res.Effects.Status.Error)
	}
	return res.Digest, nil
}

func (s *Sui) selectCoins(ctx context.Context, owner string, need decimal.Decimal) ([]string, error) {
	var (
		ids    []string
		total  = decimal.Zero
		cursor *string
	)
	for {
		var page coinPage
		if err := s.call(ctx, "suix_getCoins", &page, owner, suiCoinType, cursor, coinPageSize); err != nil {
			return nil, err
		}
		for _, c := range page.Data {
			bal, err := decimal.NewFromString(c.Balance)
			if err != nil {
				continue
			}
			ids = append(ids, c.CoinObjectId)
			total = total.Add(bal)
			if total.GreaterThanOrEqual(need) {
				return ids, nil
			}
		}
		if !page.HasNextPage || page.NextCursor == nil {
			return nil, ErrInsufficientCoins
		}
		cursor = page.NextCursor
	}
}

func (s *Sui) NewAccount() (string, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return SuiAddress(pub), hex.EncodeToString(priv.Seed()), nil
}

func (s *Sui) ValidAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") || len(address) != 66 {
		return false
	}
	_, err := hex.DecodeString(address[2:])
	return err == nil
}

// SuiAddress derives the address of an ed25519 public key.
func SuiAddress(pub ed25519.PublicKey) string {
	h := blake2b.Sum256(append([]byte{ed25519Flag}, pub...))
	return "0x" + hex.EncodeToString(h[:])
}

// SignTransaction produces the serialized signature for tx bytes under the transaction intent.
func SignTransaction(key ed25519.PrivateKey, txBytes []byte) string {
	digest := blake2b.Sum256(append([]byte{0, 0, 0}, txBytes...))
	sig := ed25519.Sign(key, digest[:])
	out := make([]byte, 0, 1+len(sig)+ed25519.PublicKeySize)
	out = append(out, ed25519Flag)
	out = append(out, sig...)
	out = append(out, key.Public().(ed25519.PublicKey)...)
	return base64.StdEncoding.EncodeToString(out)
}

func suiKey(credential string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(credential, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("credential must be a %d byte seed", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

var _ Backend = (*Sui)(nil)

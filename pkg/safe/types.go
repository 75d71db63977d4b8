package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation Safe 交易的调用类型
type Operation uint8

const (
	// Call 普通合约调用
	Call Operation = 0
	// DelegateCall 委托调用 (本工作流不使用)
	DelegateCall Operation = 1
)

// Account identifies the multisig that controls the collateral.
type Account struct {
	Address   common.Address `json:"address"`
	ChainID   int64          `json:"chain_id"`
	Threshold int            `json:"threshold"` // 执行所需的 owner 签名数量
}

// Transaction represents a Safe transaction waiting to be signed.
// It mirrors the fields the Safe contract hashes for execTransaction.
type Transaction struct {
	To             common.Address `json:"to"`
	Value          *big.Int       `json:"value"`
	Data           []byte         `json:"data"`
	Operation      Operation      `json:"operation"`
	SafeTxGas      *big.Int       `json:"safe_tx_gas"`
	BaseGas        *big.Int       `json:"base_gas"`
	GasPrice       *big.Int       `json:"gas_price"`
	GasToken       common.Address `json:"gas_token"`
	RefundReceiver common.Address `json:"refund_receiver"`

	// Nonce 是预留给这笔交易的 Safe nonce。
	// 执行时链上 nonce 必须恰好等于它，否则签名校验失败。
	Nonce uint64 `json:"nonce"`
}

// SignedTransaction represents the result of the signing process.
type SignedTransaction struct {
	Transaction

	// Digest 是被签名的 SafeTx 哈希 (EIP-712)
	Digest common.Hash `json:"digest"`
	// Signatures 是拼接后的 owner 签名 ([R || S || V] * n)
	Signatures []byte `json:"signatures"`
}

package safe

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TxDigest 计算 SafeTx 的 EIP-712 摘要。
// Domain 只含 chainId 和 verifyingContract，与 Safe v1.3+ 合约一致。
func TxDigest(account Account, tx *Transaction) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SafeTx": []apitypes.Type{
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "data", Type: "bytes"},
				{Name: "operation", Type: "uint8"},
				{Name: "safeTxGas", Type: "uint256"},
				{Name: "baseGas", Type: "uint256"},
				{Name: "gasPrice", Type: "uint256"},
				{Name: "gasToken", Type: "address"},
				{Name: "refundReceiver", Type: "address"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "SafeTx",
		Domain: apitypes.TypedDataDomain{
			ChainId:           math.NewHexOrDecimal256(account.ChainID),
			VerifyingContract: account.Address.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"to":             tx.To.Hex(),
			"value":          (*math.HexOrDecimal256)(tx.Value),
			"data":           hexutil.Encode(tx.Data),
			"operation":      math.NewHexOrDecimal256(int64(tx.Operation)),
			"safeTxGas":      (*math.HexOrDecimal256)(tx.SafeTxGas),
			"baseGas":        (*math.HexOrDecimal256)(tx.BaseGas),
			"gasPrice":       (*math.HexOrDecimal256)(tx.GasPrice),
			"gasToken":       tx.GasToken.Hex(),
			"refundReceiver": tx.RefundReceiver.Hex(),
			"nonce":          math.NewHexOrDecimal256(int64(tx.Nonce)),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct("SafeTx", typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash SafeTx: %w", err)
	}

	raw := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash)))
	return crypto.Keccak256Hash(raw), nil
}

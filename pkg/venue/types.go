package venue

import (
	"fmt"
	"math/big"
)

// OrderKind 订单方向
type OrderKind string

const (
	KindBuy  OrderKind = "buy"
	KindSell OrderKind = "sell"
)

// SigningScheme 订单的签名方案。
// 本工作流固定使用延迟授权 (presign): 先提交订单，再由多签上链授权。
type SigningScheme string

const (
	SchemePreSign SigningScheme = "presign"
)

// TradeIntent describes the trade to be quoted and submitted.
type TradeIntent struct {
	Kind              OrderKind `json:"kind"`
	SellToken         string    `json:"sellToken"`
	SellTokenDecimals int32     `json:"sellTokenDecimals"`
	BuyToken          string    `json:"buyToken"`
	BuyTokenDecimals  int32     `json:"buyTokenDecimals"`
	Amount            string    `json:"amount"` // base units

	// Receiver 永远是结算合约:
	// 清算驱动从结算合约里拿钱还贷，而不是从交易者手里。
	Receiver string `json:"receiver"`

	Env string `json:"env,omitempty"` // e.g. "staging"
}

// Amounts 一对滑点处理后的金额，基础单位十进制字符串。
type Amounts struct {
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
}

// SellAmountInt parses the sell amount into base units.
func (a Amounts) SellAmountInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(a.SellAmount, 10)
	if !ok {
		return nil, fmt.Errorf("malformed sell amount: %q", a.SellAmount)
	}
	return v, nil
}

// Quote 场所计算的成交估计。只在校验预算时用一次，不持久化。
type Quote struct {
	QuoteID       string  `json:"quoteId,omitempty"`
	AfterSlippage Amounts `json:"afterSlippage"`
	FeeAmount     string  `json:"feeAmount,omitempty"`
	Expiration    string  `json:"expiration,omitempty"`
}

// QuoteOptions 报价请求的附加参数。
type QuoteOptions struct {
	From          string        `json:"from"`
	SigningScheme SigningScheme `json:"signingScheme"`
}

// SubmitOptions 提交订单的附加参数。
type SubmitOptions struct {
	SigningScheme SigningScheme `json:"signingScheme"`
	AppData       string        `json:"appData"`     // 完整的元数据文档 JSON
	AppDataHash   string        `json:"appDataHash"` // 文档的 keccak256 内容哈希
}

// Order 场所视角的订单。
type Order struct {
	UID         string `json:"uid"`
	Status      string `json:"status,omitempty"`
	AppDataHash string `json:"appDataHash,omitempty"`
}

// PresignTransaction 延迟授权交易的原料: 对结算合约的一次调用。
type PresignTransaction struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"flashswap-core/pkg/safe"
	"flashswap-core/pkg/venue"
)

// WalletService 多签钱包服务的契约。
// 本系统只负责 build -> sign -> encode 的正确顺序和错误传递，
// 签名验证本身是钱包层的事。
type WalletService interface {
	// Account 返回绑定的多签账户
	Account() safe.Account

	// CurrentNonce 读取链上 nonce 快照。快照是参考值:
	// 计划执行前另一个写者可能已经把它推高 (见 swap_service 的重规划逻辑)。
	CurrentNonce(ctx context.Context) (uint64, error)

	// BuildTransaction 按指定 nonce 组装一笔 Safe 交易记录
	BuildTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte, nonce uint64) (*safe.Transaction, error)

	// Sign 产生达到阈值的授权签名
	Sign(ctx context.Context, tx *safe.Transaction) (*safe.SignedTransaction, error)

	// Encode 把签名后的记录序列化成自包含的执行 payload
	Encode(signed *safe.SignedTransaction) ([]byte, error)

	// Execute 广播执行。只有自动授权路径会用到。
	Execute(ctx context.Context, signed *safe.SignedTransaction) (common.Hash, error)
}

// VenueAPI 交易场所的契约: 报价、提交、查重、授权交易原料。
type VenueAPI interface {
	Quote(ctx context.Context, intent venue.TradeIntent, opts venue.QuoteOptions) (*venue.Quote, error)
	SubmitOrder(ctx context.Context, intent venue.TradeIntent, opts venue.SubmitOptions) (string, error)
	OrderByAppData(ctx context.Context, owner common.Address, appDataHash string) (*venue.Order, error)
	PresignTransaction(orderUID string, account common.Address) (*venue.PresignTransaction, error)
}

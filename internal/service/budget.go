package service

import (
	"math/big"

	"github.com/shopspring/decimal"

	"flashswap-core/pkg/errno"
	"flashswap-core/pkg/venue"
)

// CheckBudget 校验滑点后的卖出数量不超过预算上限。
// 刚好等于上限视为通过; 超出一个最小单位就拒绝。
// 上限和报价都是代币最小单位的整数, 不做任何四舍五入。
func CheckBudget(quote *venue.Quote, ceiling *big.Int, decimals int32) error {
	if quote == nil {
		return errno.ErrQuoteUnavailable.Wrap(nil)
	}
	sell, err := quote.AfterSlippage.SellAmountInt()
	if err != nil {
		return errno.ErrQuoteUnavailable.Wrapf("malformed sell amount %q", quote.AfterSlippage.SellAmount)
	}
	if sell.Cmp(ceiling) > 0 {
		return errno.ErrBudgetExceeded.Wrapf("quoted sell %s exceeds budget %s (%s over)",
			formatUnits(sell, decimals), formatUnits(ceiling, decimals),
			formatUnits(new(big.Int).Sub(sell, ceiling), decimals))
	}
	return nil
}

// formatUnits 把最小单位整数转成人类可读的十进制串, 仅用于日志和报错
func formatUnits(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}

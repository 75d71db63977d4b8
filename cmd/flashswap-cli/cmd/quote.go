package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"flashswap-core/internal/service"
	"flashswap-core/pkg/config"
	"flashswap-core/pkg/errno"
	"flashswap-core/pkg/venue"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "获取报价并校验预算 (不下单)",
	Long:  `按配置的贷款条款向场所要一次报价，对照抵押上限给出预算判定。只读操作，不提交任何订单。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Global
		exitOnError(cfg.Validate())

		client := venue.NewClient(
			cfg.Venue.BaseUrl,
			common.HexToAddress(cfg.Venue.SettlementContract),
			&http.Client{Timeout: 30 * time.Second},
		)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		intent := venue.TradeIntent{
			Kind:              venue.KindBuy,
			SellToken:         cfg.Loan.CollateralToken,
			SellTokenDecimals: cfg.Loan.CollateralTokenDecimals,
			BuyToken:          cfg.Loan.BorrowedToken,
			BuyTokenDecimals:  cfg.Loan.BorrowedTokenDecimals,
			Amount:            cfg.Loan.BorrowedAmount,
			Receiver:          cfg.Venue.SettlementContract,
			Env:               cfg.Venue.Env,
		}

		fmt.Println("正在获取报价...")
		quote, err := client.Quote(ctx, intent, venue.QuoteOptions{
			From:          cfg.Wallet.SafeAddress,
			SigningScheme: venue.SchemePreSign,
		})
		exitOnError(err)

		sellHuman := humanAmount(quote.AfterSlippage.SellAmount, cfg.Loan.CollateralTokenDecimals)
		buyHuman := humanAmount(quote.AfterSlippage.BuyAmount, cfg.Loan.BorrowedTokenDecimals)
		ceilingHuman := humanAmount(cfg.Loan.CollateralAmount, cfg.Loan.CollateralTokenDecimals)

		fmt.Println("---------------------------------------------------")
		fmt.Printf("滑点后卖出: %s (%s)\n", sellHuman, cfg.Loan.CollateralToken)
		fmt.Printf("滑点后买入: %s (%s)\n", buyHuman, cfg.Loan.BorrowedToken)
		fmt.Printf("预算上限:   %s\n", ceilingHuman)
		fmt.Println("---------------------------------------------------")

		ceiling, _ := new(big.Int).SetString(cfg.Loan.CollateralAmount, 10)
		if err := service.CheckBudget(quote, ceiling, cfg.Loan.CollateralTokenDecimals); err != nil {
			if errors.Is(err, errno.ErrBudgetExceeded) {
				fmt.Printf("❌ 超出预算: %v\n", err)
			} else {
				fmt.Printf("❌ 预算校验失败: %v\n", err)
			}
			os.Exit(1)
		}
		fmt.Println("✅ 报价在预算之内，可以下单。")
	},
}

// humanAmount 把基础单位十进制串转成人类可读数值，仅用于展示
func humanAmount(raw string, decimals int32) string {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

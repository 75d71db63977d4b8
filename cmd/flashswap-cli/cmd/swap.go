package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flashswap-core/internal/service"
	"flashswap-core/pkg/config"
	"flashswap-core/pkg/errno"
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "执行一次完整的抵押置换",
	Long: `读取配置中的贷款条款，构建并预签名还款/取抵押交易，
获取报价并校验预算，提交订单，最后完成延迟授权。
加 --manual 则跳过自动授权，把预签名步骤留给钱包界面。`,
	Run: func(cmd *cobra.Command, args []string) {
		manual, _ := cmd.Flags().GetBool("manual")
		cfg := config.Global

		svc, err := buildWorkflow(&cfg)
		exitOnError(err)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("正在执行抵押置换工作流...")
		fmt.Println("---------------------------------------------------")
		fmt.Printf("Safe:        %s\n", cfg.Wallet.SafeAddress)
		fmt.Printf("借入:        %s (%s)\n", cfg.Loan.BorrowedAmount, cfg.Loan.BorrowedToken)
		fmt.Printf("抵押上限:    %s (%s)\n", cfg.Loan.CollateralAmount, cfg.Loan.CollateralToken)
		fmt.Println("---------------------------------------------------")

		res, err := svc.Run(ctx, service.RunOptions{ManualAuthorization: manual})

		// 先把报价亮出来, 预算判定要对着它看
		if res != nil && res.Quote != nil {
			fmt.Printf("滑点后卖出: %s (%s)\n",
				humanAmount(res.Quote.AfterSlippage.SellAmount, cfg.Loan.CollateralTokenDecimals), cfg.Loan.CollateralToken)
			fmt.Printf("滑点后买入: %s (%s)\n",
				humanAmount(res.Quote.AfterSlippage.BuyAmount, cfg.Loan.BorrowedTokenDecimals), cfg.Loan.BorrowedToken)
			fmt.Println("---------------------------------------------------")
		}

		if err != nil && (res == nil || res.OrderUID == "") {
			fmt.Printf("❌ 工作流中止 (阶段: %s): %v\n", errno.StageOf(err), err)
			os.Exit(1)
		}

		fmt.Printf("✅ 订单已提交!\n")
		fmt.Printf("Order UID:    %s\n", res.OrderUID)
		fmt.Printf("AppData Hash: %s\n", res.AppDataHash)
		fmt.Printf("授权 Nonce:   %d\n", res.Reservation.Authorization)
		fmt.Printf("Hook Nonce:   %v\n", res.Reservation.Hooks)

		if err != nil && errors.Is(err, errno.ErrPresignExecution) {
			fmt.Printf("\n⚠️  自动授权失败: %v\n", err)
		}

		if res.AuthorizationPending {
			printManualSteps(cfg, res)
			return
		}

		fmt.Println("---------------------------------------------------")
		fmt.Printf("✅ 授权已上链!\n")
		fmt.Printf("Tx Hash: %s\n", res.AuthorizationTxHash)
		fmt.Println("订单进入撮合队列，结算时将在同一笔交易内完成还款和抵押置换。")
	},
}

// printManualSteps 打印在钱包界面手动完成授权的操作步骤
func printManualSteps(cfg config.Config, res *service.Result) {
	fmt.Println("---------------------------------------------------")
	fmt.Println("⚠️  订单尚未授权，请在钱包界面手动完成 presign:")
	fmt.Printf("  1. 打开 Safe 界面，选择账户 %s\n", cfg.Wallet.SafeAddress)
	fmt.Printf("  2. 新建交易: 调用结算合约 %s 的 setPreSignature\n", cfg.Venue.SettlementContract)
	fmt.Printf("     orderUid: %s\n", res.OrderUID)
	fmt.Printf("     signed:   true\n")
	fmt.Printf("  3. 确认交易使用 nonce %d (已为授权预留)\n", res.Reservation.Authorization)
	fmt.Println("  4. 达到阈值签名后执行")
	fmt.Println("授权上链前请勿用该账户发起其他交易，否则预留的 nonce 会被打乱。")
}

func init() {
	rootCmd.AddCommand(swapCmd)
	swapCmd.Flags().BoolP("manual", "m", false, "跳过自动授权，手动在钱包界面完成 presign")
}

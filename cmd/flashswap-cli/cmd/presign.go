package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flashswap-core/pkg/config"
)

var presignCmd = &cobra.Command{
	Use:   "presign",
	Short: "对已提交的订单补发授权",
	Long: `对一个已经提交但尚未授权的订单单独执行 setPreSignature。
用于自动授权失败后的补救: swap 命令会打印订单的 Order UID。`,
	Run: func(cmd *cobra.Command, args []string) {
		uid, _ := cmd.Flags().GetString("uid")
		nonce, _ := cmd.Flags().GetInt64("nonce")

		if uid == "" {
			exitOnError(fmt.Errorf("必须用 --uid 指定订单"))
		}

		cfg := config.Global
		svc, err := buildWorkflow(&cfg)
		exitOnError(err)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		fmt.Printf("正在授权订单 %s ...\n", uid)
		txHash, err := svc.AuthorizeOrder(ctx, uid, nonce)
		exitOnError(err)

		fmt.Printf("✅ 授权已上链!\n")
		fmt.Printf("Tx Hash: %s\n", txHash.Hex())
	},
}

func init() {
	rootCmd.AddCommand(presignCmd)
	presignCmd.Flags().StringP("uid", "u", "", "订单的 Order UID")
	presignCmd.Flags().Int64P("nonce", "n", -1, "授权使用的 Safe nonce (负数则读链上当前值)")
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flashswap-core/pkg/config"
	"flashswap-core/pkg/logger"
	"flashswap-core/pkg/monitor"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "flashswap-cli",
	Short: "闪电贷抵押置换命令行工具",
	Long: `通过闪电贷在单笔结算内完成借贷仓位的抵押置换:
预构建并预签名还款和取抵押交易，嵌入订单元数据，
订单提交后用延迟授权 (presign) 完成上链授权。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initApp)
}

func initApp() {
	config.Init()
	logger.Init(config.Global.App.Env)
	monitor.Init()
	monitor.Serve(config.Global.App.MetricsPort)
}

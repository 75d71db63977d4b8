package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flashswap-core/pkg/config"
	"flashswap-core/pkg/keystore"
	"flashswap-core/pkg/signer"
)

// newCmd 代表 new 命令
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "创建一个新的 owner 签名密钥",
	Long:  `生成一个新的随机 BIP-39 助记词，派生 owner 地址，并加密保存为 Keystore 文件。`,
	Run: func(cmd *cobra.Command, args []string) {
		outputFile, _ := cmd.Flags().GetString("output")

		fmt.Println("正在生成新的 owner 密钥...")
		fmt.Println("---------------------------------------------------")

		// 1. 生成助记词
		mnemonic, err := signer.NewMnemonic()
		exitOnError(err)
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")

		// 2. 派生 owner 地址
		path := config.Global.Wallet.DerivationPath
		s, err := signer.FromMnemonic(mnemonic, path)
		exitOnError(err)
		fmt.Printf("Owner 地址 [%s]: %s\n", path, s.Address().Hex())
		fmt.Println("---------------------------------------------------")

		// 3. 输入密码并加密保存
		fmt.Print("请设置 Keystore 密码: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		exitOnError(err)
		fmt.Print("\n请再次输入密码确认: ")
		confirm, err := term.ReadPassword(int(syscall.Stdin))
		exitOnError(err)
		fmt.Println()

		if string(password) != string(confirm) {
			fmt.Println("❌ 两次输入的密码不一致")
			os.Exit(1)
		}

		encryptedKey, err := keystore.EncryptMnemonic(mnemonic, string(password))
		exitOnError(err)
		exitOnError(encryptedKey.SaveToFile(outputFile))

		fmt.Printf("✅ Keystore 已保存到: %s\n", outputFile)
		fmt.Println("请妥善保管您的助记词！任何拥有助记词的人都可以控制该 owner 密钥。")
		fmt.Println("注意: 这是多签的 owner 密钥，单独持有它并不能动用 Safe 里的资产。")
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", "signer.json", "Keystore 输出文件路径")
}

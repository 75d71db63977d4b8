package config

import (
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Wallet WalletConfig `mapstructure:"wallet"`
	Loan   LoanConfig   `mapstructure:"loan"`
	Venue  VenueConfig  `mapstructure:"venue"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	MetricsPort string `mapstructure:"metrics_port"` // 留空则不启动 metrics 监听
}

type WalletConfig struct {
	SafeAddress    string `mapstructure:"safe_address"`
	ChainID        int64  `mapstructure:"chain_id"`
	RpcUrl         string `mapstructure:"rpc_url"`
	Mnemonic       string `mapstructure:"mnemonic"`        // 二选一: 助记词 + 派生路径
	DerivationPath string `mapstructure:"derivation_path"` // e.g. "m/44'/60'/0'/0/0"
	PrivateKey     string `mapstructure:"private_key"`     // 二选一: 裸私钥 Hex
	KeystorePath   string `mapstructure:"keystore_path"`   // 本地 Keystore 文件路径
	Password       string `mapstructure:"password"`        // Keystore 密码 (通常通过环境变量 WALLET_PASSWORD 传入)
}

// LoanConfig 闪电贷条款与预算上限。金额一律是链上基础单位的十进制字符串。
type LoanConfig struct {
	LenderAddress           string `mapstructure:"lender_address"` // 借贷池合约 (e.g. Aave Pool)
	BorrowedToken           string `mapstructure:"borrowed_token"`
	BorrowedTokenDecimals   int32  `mapstructure:"borrowed_token_decimals"`
	BorrowedAmount          string `mapstructure:"borrowed_amount"`
	CollateralToken         string `mapstructure:"collateral_token"`
	CollateralTokenDecimals int32  `mapstructure:"collateral_token_decimals"`
	CollateralAmount        string `mapstructure:"collateral_amount"` // 同时是卖出金额的预算上限
}

type VenueConfig struct {
	BaseUrl            string `mapstructure:"base_url"`
	AppCode            string `mapstructure:"app_code"`
	SettlementContract string `mapstructure:"settlement_contract"`
	Env                string `mapstructure:"env"` // e.g. "staging", "prod"
}

// RetryConfig 按外部调用类别 (wallet / venue) 分别配置的有界重试。
type RetryConfig struct {
	VenueAttempts   int `mapstructure:"venue_attempts"`
	VenueBackoffMs  int `mapstructure:"venue_backoff_ms"`
	WalletAttempts  int `mapstructure:"wallet_attempts"`
	WalletBackoffMs int `mapstructure:"wallet_backoff_ms"`
	ReplanAttempts  int `mapstructure:"replan_attempts"` // nonce 冲突时从头重新规划的次数
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // 留空则不使用分布式锁 / Redis Stream
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	LockTTL  int    `mapstructure:"lock_ttl_seconds"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if desired
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			// Config file was found but another error was produced
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")

	viper.SetDefault("wallet.derivation_path", "m/44'/60'/0'/0/0")
	viper.SetDefault("wallet.keystore_path", "signer.json")

	viper.SetDefault("venue.env", "staging")

	viper.SetDefault("retry.venue_attempts", 5)
	viper.SetDefault("retry.venue_backoff_ms", 500)
	viper.SetDefault("retry.wallet_attempts", 3)
	viper.SetDefault("retry.wallet_backoff_ms", 1000)
	viper.SetDefault("retry.replan_attempts", 3)

	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.lock_ttl_seconds", 120)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "flashswap_order_events")
}

// Validate 在构造工作流前做一次性校验，之后流程中不再读任何全局配置。
func (c *Config) Validate() error {
	for name, addr := range map[string]string{
		"wallet.safe_address":       c.Wallet.SafeAddress,
		"loan.lender_address":       c.Loan.LenderAddress,
		"loan.borrowed_token":       c.Loan.BorrowedToken,
		"loan.collateral_token":     c.Loan.CollateralToken,
		"venue.settlement_contract": c.Venue.SettlementContract,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: not a valid address: %q", name, addr)
		}
	}

	for name, amount := range map[string]string{
		"loan.borrowed_amount":   c.Loan.BorrowedAmount,
		"loan.collateral_amount": c.Loan.CollateralAmount,
	} {
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok || v.Sign() <= 0 {
			return fmt.Errorf("%s: not a positive base-unit amount: %q", name, amount)
		}
	}

	if c.Wallet.ChainID <= 0 {
		return fmt.Errorf("wallet.chain_id must be positive, got %d", c.Wallet.ChainID)
	}
	if c.Wallet.RpcUrl == "" {
		return fmt.Errorf("wallet.rpc_url is required")
	}
	if c.Venue.BaseUrl == "" {
		return fmt.Errorf("venue.base_url is required")
	}
	if c.Retry.VenueAttempts < 1 || c.Retry.WalletAttempts < 1 || c.Retry.ReplanAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	return nil
}

package cmd

import (
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"flashswap-core/internal/service"
	"flashswap-core/internal/service/mq"
	"flashswap-core/pkg/config"
	"flashswap-core/pkg/keystore"
	"flashswap-core/pkg/retry"
	"flashswap-core/pkg/safe"
	"flashswap-core/pkg/signer"
	"flashswap-core/pkg/utils/lock"
	"flashswap-core/pkg/venue"
)

// loadSigner 按配置优先级加载 owner 私钥:
// 裸私钥 > 助记词 > Keystore 文件 (交互式输入密码)
func loadSigner(cfg *config.Config) (*signer.Signer, error) {
	switch {
	case cfg.Wallet.PrivateKey != "":
		return signer.FromPrivateKey(cfg.Wallet.PrivateKey)
	case cfg.Wallet.Mnemonic != "":
		return signer.FromMnemonic(cfg.Wallet.Mnemonic, cfg.Wallet.DerivationPath)
	}

	encryptedKey, err := keystore.LoadFromFile(cfg.Wallet.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("加载 Keystore 失败: %w", err)
	}

	password := cfg.Wallet.Password
	if password == "" {
		fmt.Print("请输入 Keystore 密码: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return nil, fmt.Errorf("读取密码失败: %w", err)
		}
		fmt.Println()
		password = string(bytePassword)
	}

	mnemonic, err := keystore.DecryptMnemonic(encryptedKey, password)
	if err != nil {
		return nil, fmt.Errorf("解密失败 (密码错误?): %w", err)
	}
	return signer.FromMnemonic(mnemonic, cfg.Wallet.DerivationPath)
}

// buildWorkflow 按配置组装完整的工作流: 钱包客户端、场所客户端、
// 可选的 Redis 锁和事件生产者。
func buildWorkflow(cfg *config.Config) (*service.SwapService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := loadSigner(cfg)
	if err != nil {
		return nil, err
	}

	account := safe.Account{
		Address:   common.HexToAddress(cfg.Wallet.SafeAddress),
		ChainID:   cfg.Wallet.ChainID,
		Threshold: 1,
	}
	walletPolicy := retry.Policy{
		Name:     "wallet",
		Attempts: cfg.Retry.WalletAttempts,
		Base:     time.Duration(cfg.Retry.WalletBackoffMs) * time.Millisecond,
		Max:      30 * time.Second,
	}
	wallet, err := safe.NewClient(cfg.Wallet.RpcUrl, account, s, walletPolicy)
	if err != nil {
		return nil, fmt.Errorf("连接 RPC 节点失败: %w", err)
	}

	venueAPI := venue.NewClient(
		cfg.Venue.BaseUrl,
		common.HexToAddress(cfg.Venue.SettlementContract),
		&http.Client{Timeout: 30 * time.Second},
	)

	// Redis 配置了才启用分布式锁和消息队列
	var locker lock.DistributedLock
	var producer mq.Producer
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedisLock(rdb)

		if cfg.Redis.MQType == "kafka" {
			producer = mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		} else {
			producer = mq.NewRedisProducer(rdb)
		}
	}

	return service.NewSwapService(*cfg, wallet, venueAPI, producer, locker)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

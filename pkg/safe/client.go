package safe

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"flashswap-core/pkg/abiutil"
	"flashswap-core/pkg/errno"
	"flashswap-core/pkg/logger"
	"flashswap-core/pkg/retry"
	"flashswap-core/pkg/signer"
)

// 回执轮询间隔
const receiptPollInterval = 2 * time.Second

// Client talks to the Safe multisig contract through an RPC node:
// build -> sign -> encode for reserved transactions, plus execute for
// the automated authorization path.
type Client struct {
	eth     *ethclient.Client
	account Account
	signer  *signer.Signer
	policy  retry.Policy
}

// NewClient dials the RPC node and binds the owner signer to the Safe account.
func NewClient(rpcURL string, account Account, s *signer.Signer, policy retry.Policy) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &Client{eth: eth, account: account, signer: s, policy: policy}, nil
}

// Account returns the bound multisig account.
func (c *Client) Account() Account {
	return c.account
}

// CurrentNonce 读取 Safe 合约的链上 nonce。
// 这是一个快照: 在计划执行前，别的进程随时可能把它推高。
func (c *Client) CurrentNonce(ctx context.Context) (uint64, error) {
	callData, err := abiutil.Safe.Pack("nonce")
	if err != nil {
		return 0, err
	}

	var raw []byte
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = c.eth.CallContract(ctx, ethereum.CallMsg{
			To:   &c.account.Address,
			Data: callData,
		}, nil)
		return callErr
	})
	if err != nil {
		return 0, err
	}

	out, err := abiutil.Safe.Unpack("nonce", raw)
	if err != nil {
		return 0, err
	}
	nonce := out[0].(*big.Int)
	return nonce.Uint64(), nil
}

// BuildTransaction assembles a Safe transaction record for the given nonce.
// Gas 相关字段全部置零: hook 交易由结算方代执行，不走 Safe 的 gas 退款。
func (c *Client) BuildTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte, nonce uint64) (*Transaction, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	return &Transaction{
		To:        to,
		Value:     value,
		Data:      data,
		Operation: Call,
		SafeTxGas: big.NewInt(0),
		BaseGas:   big.NewInt(0),
		GasPrice:  big.NewInt(0),
		Nonce:     nonce,
	}, nil
}

// Sign 对 SafeTx 摘要做 eth_sign 风格签名。
// 链上区分签名类型靠 V: eth_sign 的 V 要再加 4。
func (c *Client) Sign(ctx context.Context, tx *Transaction) (*SignedTransaction, error) {
	if c.account.Threshold > 1 {
		// 只持有一把 owner 私钥，凑不齐更高的阈值
		return nil, errno.ErrSignature.Wrapf("threshold %d requires co-signers", c.account.Threshold)
	}

	digest, err := TxDigest(c.account, tx)
	if err != nil {
		return nil, errno.ErrSignature.Wrap(err)
	}

	sig, err := c.signer.SignDigest(accounts.TextHash(digest.Bytes()))
	if err != nil {
		return nil, errno.ErrSignature.Wrap(err)
	}
	sig[64] += 4 // eth_sign marker

	return &SignedTransaction{
		Transaction: *tx,
		Digest:      digest,
		Signatures:  sig,
	}, nil
}

// Encode serializes a signed record into a self-contained execTransaction
// payload — the bytes that get embedded into the order metadata as a hook.
func Encode(signed *SignedTransaction) ([]byte, error) {
	return abiutil.Safe.Pack("execTransaction",
		signed.To,
		signed.Value,
		signed.Data,
		uint8(signed.Operation),
		signed.SafeTxGas,
		signed.BaseGas,
		signed.GasPrice,
		signed.GasToken,
		signed.RefundReceiver,
		signed.Signatures,
	)
}

// Encode 方法形式，方便通过接口调用。
func (c *Client) Encode(signed *SignedTransaction) ([]byte, error) {
	return Encode(signed)
}

// Execute 由 owner EOA 广播一笔调用 execTransaction 的链上交易。
// 只有自动授权路径会走到这里，hook 交易永远不会被本系统广播。
//
// 广播前先用 eth_estimateGas 模拟执行, 广播后等回执确认状态:
// 节点的 eth_sendRawTransaction 只校验 EOA 的 nonce 和余额, 不执行
// Safe 合约, 光看广播是否被接受发现不了链上回退。
func (c *Client) Execute(ctx context.Context, signed *SignedTransaction) (common.Hash, error) {
	payload, err := Encode(signed)
	if err != nil {
		return common.Hash{}, err
	}

	var txHash common.Hash
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		eoaNonce, err := c.eth.PendingNonceAt(ctx, c.signer.Address())
		if err != nil {
			return err
		}
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}

		from := c.signer.Address()
		gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
			From: from,
			To:   &c.account.Address,
			Data: payload,
		})
		if err != nil {
			// 模拟执行已经回退, 上链也一定回退
			return retry.Permanent(c.classifyRevert(ctx, signed, err))
		}
		gasLimit += gasLimit / 5

		tx := ethtypes.NewTransaction(eoaNonce, c.account.Address, big.NewInt(0), gasLimit, gasPrice, payload)
		ethSigner := ethtypes.NewEIP155Signer(big.NewInt(c.account.ChainID))
		signedTx, err := ethtypes.SignTx(tx, ethSigner, c.signer.Key())
		if err != nil {
			return retry.Permanent(errno.ErrSignature.Wrap(err))
		}

		if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
			if isNonceMismatch(err) {
				// Safe nonce 被别的交易抢了，重试没用，要整体重新规划
				return retry.Permanent(errno.ErrNonceConflict.Wrap(err))
			}
			return err
		}

		receipt, err := c.waitReceipt(ctx, signedTx.Hash())
		if err != nil {
			return err
		}
		if receipt.Status == ethtypes.ReceiptStatusFailed {
			return retry.Permanent(c.classifyRevert(ctx, signed,
				fmt.Errorf("authorization reverted in tx %s", signedTx.Hash().Hex())))
		}
		txHash = signedTx.Hash()
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}

	logger.Info("safe transaction confirmed",
		zap.String("safe", c.account.Address.Hex()),
		zap.Uint64("safe_nonce", signed.Nonce),
		zap.String("tx_hash", txHash.Hex()))
	return txHash, nil
}

// waitReceipt 轮询交易回执直到出块或 ctx 取消。
func (c *Client) waitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			logger.Warn("receipt poll failed",
				zap.String("tx_hash", txHash.Hex()),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

// classifyRevert 区分授权交易回退的原因。
// Safe nonce 已被别的交易消费 -> 整个计划作废, 需要重新规划;
// 其余回退留给运维走手动授权路径。
func (c *Client) classifyRevert(ctx context.Context, signed *SignedTransaction, cause error) error {
	if isNonceMismatch(cause) {
		return errno.ErrNonceConflict.Wrap(cause)
	}
	if current, err := c.CurrentNonce(ctx); err == nil && current != signed.Nonce {
		return errno.ErrNonceConflict.Wrapf("safe nonce moved to %d while authorizing with %d: %v",
			current, signed.Nonce, cause)
	}
	return errno.ErrPresignExecution.Wrap(cause)
}

// isNonceMismatch 识别 Safe nonce 过期导致的失败。
// Safe 合约在 nonce 不匹配时签名校验会以 GS026 回退。
func isNonceMismatch(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "gs025") ||
		strings.Contains(msg, "gs026") ||
		strings.Contains(msg, "invalid nonce") ||
		strings.Contains(msg, "nonce too low")
}

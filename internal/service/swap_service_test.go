package service

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashswap-core/pkg/appdata"
	"flashswap-core/pkg/config"
	"flashswap-core/pkg/errno"
	"flashswap-core/pkg/safe"
	"flashswap-core/pkg/venue"
)

// --- fakes ---

type fakeWallet struct {
	mu          sync.Mutex
	account     safe.Account
	nonce       uint64
	nonceReads  int
	builtNonces []uint64
	executed    []*safe.SignedTransaction
	executeErrs []error // 每次 Execute 弹出一个, 用完后成功
	signErr     error
}

func newFakeWallet(nonce uint64) *fakeWallet {
	return &fakeWallet{
		account: safe.Account{
			Address:   common.HexToAddress("0x5afe5afe5afe5afe5afe5afe5afe5afe5afe5afe"),
			ChainID:   100,
			Threshold: 1,
		},
		nonce: nonce,
	}
}

func (w *fakeWallet) Account() safe.Account { return w.account }

func (w *fakeWallet) CurrentNonce(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nonceReads++
	return w.nonce, nil
}

func (w *fakeWallet) BuildTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte, nonce uint64) (*safe.Transaction, error) {
	w.mu.Lock()
	w.builtNonces = append(w.builtNonces, nonce)
	w.mu.Unlock()
	return &safe.Transaction{
		To:        to,
		Value:     value,
		Data:      data,
		Operation: safe.Call,
		SafeTxGas: big.NewInt(0),
		BaseGas:   big.NewInt(0),
		GasPrice:  big.NewInt(0),
		Nonce:     nonce,
	}, nil
}

func (w *fakeWallet) Sign(ctx context.Context, tx *safe.Transaction) (*safe.SignedTransaction, error) {
	if w.signErr != nil {
		return nil, w.signErr
	}
	return &safe.SignedTransaction{Transaction: *tx, Signatures: make([]byte, 65)}, nil
}

func (w *fakeWallet) Encode(signed *safe.SignedTransaction) ([]byte, error) {
	return safe.Encode(signed)
}

func (w *fakeWallet) Execute(ctx context.Context, signed *safe.SignedTransaction) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.executeErrs) > 0 {
		err := w.executeErrs[0]
		w.executeErrs = w.executeErrs[1:]
		if err != nil {
			// nonce 冲突意味着链上 nonce 已经被推高
			w.nonce += 3
			return common.Hash{}, err
		}
	}
	w.executed = append(w.executed, signed)
	return common.HexToHash("0x1111"), nil
}

type fakeVenue struct {
	mu            sync.Mutex
	sellAmount    string
	quoteErr      error
	submitErrs    []error // 每次 SubmitOrder 弹出一个, 用完后成功
	submitCalls   int
	submittedOpts []venue.SubmitOptions
	lookupOrder   *venue.Order
	lookupCalls   int
	presignErr    error
}

func (v *fakeVenue) Quote(ctx context.Context, intent venue.TradeIntent, opts venue.QuoteOptions) (*venue.Quote, error) {
	if v.quoteErr != nil {
		return nil, v.quoteErr
	}
	return &venue.Quote{AfterSlippage: venue.Amounts{
		SellAmount: v.sellAmount,
		BuyAmount:  intent.Amount,
	}}, nil
}

func (v *fakeVenue) SubmitOrder(ctx context.Context, intent venue.TradeIntent, opts venue.SubmitOptions) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitCalls++
	if len(v.submitErrs) > 0 {
		err := v.submitErrs[0]
		v.submitErrs = v.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	v.submittedOpts = append(v.submittedOpts, opts)
	return "0xdeadbeef-order-uid", nil
}

func (v *fakeVenue) OrderByAppData(ctx context.Context, owner common.Address, appDataHash string) (*venue.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lookupCalls++
	return v.lookupOrder, nil
}

func (v *fakeVenue) PresignTransaction(orderUID string, account common.Address) (*venue.PresignTransaction, error) {
	if v.presignErr != nil {
		return nil, v.presignErr
	}
	return &venue.PresignTransaction{
		To:    "0x9008D19f58AAbD9eD0D60971565AA8510560ab41",
		Value: "0",
		Data:  "0xec6cb13f",
	}, nil
}

func testConfig() config.Config {
	return config.Config{
		App: config.AppConfig{Env: "test"},
		Wallet: config.WalletConfig{
			SafeAddress: "0x5afe5afe5afe5afe5afe5afe5afe5afe5afe5afe",
			ChainID:     100,
			RpcUrl:      "http://localhost:8545",
		},
		Loan: config.LoanConfig{
			LenderAddress:           "0xb50201558B00496A145fE76f7424749556E326D8",
			BorrowedToken:           "0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d",
			BorrowedTokenDecimals:   18,
			BorrowedAmount:          "1000000000000000000",
			CollateralToken:         "0xDDAfbb505ad214D7b80b1f830fcCc89B60fb7A83",
			CollateralTokenDecimals: 6,
			CollateralAmount:        "10000000000",
		},
		Venue: config.VenueConfig{
			BaseUrl:            "http://venue.test",
			AppCode:            "flashswap-core",
			SettlementContract: "0x9008D19f58AAbD9eD0D60971565AA8510560ab41",
			Env:                "staging",
		},
		Retry: config.RetryConfig{
			VenueAttempts:  3,
			VenueBackoffMs: 1,
			WalletAttempts: 1,
			ReplanAttempts: 3,
		},
		Kafka: config.KafkaConfig{Topic: "flashswap_order_events"},
	}
}

func newTestService(t *testing.T, wallet *fakeWallet, api *fakeVenue) *SwapService {
	t.Helper()
	svc, err := NewSwapService(testConfig(), wallet, api, nil, nil)
	require.NoError(t, err)
	return svc
}

// --- tests ---

func TestRunAuthorizedPath(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{sellAmount: "9999999999"}
	svc := newTestService(t, wallet, api)

	res, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StageAuthorized, res.Stage)
	assert.Equal(t, "0xdeadbeef-order-uid", res.OrderUID)
	assert.False(t, res.AuthorizationPending)
	assert.NotEmpty(t, res.AuthorizationTxHash)
	assert.Equal(t, uint64(5), res.Reservation.Authorization)
	assert.Equal(t, []uint64{6, 7}, res.Reservation.Hooks)

	// hook 交易拿 6 和 7, 授权交易最后拿 5
	require.Len(t, wallet.builtNonces, 3)
	hookNonces := append([]uint64(nil), wallet.builtNonces[:2]...)
	sort.Slice(hookNonces, func(i, j int) bool { return hookNonces[i] < hookNonces[j] })
	assert.Equal(t, []uint64{6, 7}, hookNonces)
	assert.Equal(t, uint64(5), wallet.builtNonces[2])

	// 只有授权交易被广播, hook 交易绝不广播
	require.Len(t, wallet.executed, 1)
	assert.Equal(t, uint64(5), wallet.executed[0].Nonce)
}

func TestRunEmbedsHooksInUnwindOrder(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{sellAmount: "9999999999"}
	svc := newTestService(t, wallet, api)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, api.submittedOpts, 1)

	opts := api.submittedOpts[0]
	var doc appdata.Document
	require.NoError(t, json.Unmarshal([]byte(opts.AppData), &doc))

	require.Len(t, doc.Metadata.Hooks.Pre, 2)
	assert.Empty(t, doc.Metadata.Hooks.Post)

	// 两个 hook 都是对多签的 execTransaction 调用, 内嵌还款和取抵押的 calldata
	repay, withdraw := doc.Metadata.Hooks.Pre[0], doc.Metadata.Hooks.Pre[1]
	assert.Equal(t, wallet.account.Address.Hex(), repay.Target)
	assert.Equal(t, wallet.account.Address.Hex(), withdraw.Target)
	assert.Equal(t, "1000000", repay.GasLimit)
	assert.Equal(t, "0", repay.Value)
	assert.True(t, strings.HasPrefix(repay.CallData, "0x6a761202"))
	assert.Contains(t, repay.CallData, "573ade81")    // repay selector
	assert.Contains(t, withdraw.CallData, "69328dec") // withdraw selector

	assert.Equal(t, wallet.account.Address.Hex(), doc.Metadata.Signer)
	assert.Equal(t, venue.SchemePreSign, opts.SigningScheme)
	assert.NotEmpty(t, opts.AppDataHash)
}

func TestRunManualAuthorization(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{sellAmount: "9999999999"}
	svc := newTestService(t, wallet, api)

	res, err := svc.Run(context.Background(), RunOptions{ManualAuthorization: true})
	require.NoError(t, err)

	assert.Equal(t, StageSubmitted, res.Stage)
	assert.True(t, res.AuthorizationPending)
	assert.Empty(t, res.AuthorizationTxHash)
	// 授权 nonce 保留给操作员, 本系统不消费
	assert.Equal(t, uint64(5), res.Reservation.Authorization)
	assert.Empty(t, wallet.executed)
}

func TestRunBudgetExceededAborts(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{sellAmount: "10000000001"} // 超预算一个最小单位
	svc := newTestService(t, wallet, api)

	res, err := svc.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, errno.ErrBudgetExceeded)
	assert.Equal(t, StageValidated, errno.StageOf(err))
	assert.Zero(t, api.submitCalls, "no order may reach the venue after a budget reject")
	assert.Empty(t, wallet.executed)

	// 被拒的报价随终态带回, 操作员要能看到实际成本
	require.NotNil(t, res)
	assert.Equal(t, StageAborted, res.Stage)
	require.NotNil(t, res.Quote)
	assert.Equal(t, "10000000001", res.Quote.AfterSlippage.SellAmount)
}

func TestRunBudgetEqualityPasses(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{sellAmount: "10000000000"} // 正好等于上限
	svc := newTestService(t, wallet, api)

	res, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, StageAuthorized, res.Stage)
}

func TestRunSubmitRetryChecksForExistingOrder(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{
		sellAmount:  "9999999999",
		submitErrs:  []error{venue.ErrRateLimited},
		lookupOrder: &venue.Order{UID: "0xexisting-order-uid"},
	}
	svc := newTestService(t, wallet, api)

	res, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	// 重试前查到了已存在的订单, 不再重复提交
	assert.Equal(t, "0xexisting-order-uid", res.OrderUID)
	assert.Equal(t, 1, api.submitCalls)
	assert.GreaterOrEqual(t, api.lookupCalls, 1)
}

func TestRunSubmitPermanentErrorAborts(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{
		sellAmount: "9999999999",
		submitErrs: []error{venue.ErrOrderRejected, venue.ErrOrderRejected, venue.ErrOrderRejected},
	}
	svc := newTestService(t, wallet, api)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, errno.ErrSubmission)
	assert.Equal(t, StageSubmitted, errno.StageOf(err))
	// 非瞬时错误不重试
	assert.Equal(t, 1, api.submitCalls)
}

func TestRunReplansOnNonceConflict(t *testing.T) {
	wallet := newFakeWallet(5)
	wallet.executeErrs = []error{errno.ErrNonceConflict.Wrapf("GS026")}
	api := &fakeVenue{sellAmount: "9999999999"}
	svc := newTestService(t, wallet, api)

	res, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StageAuthorized, res.Stage)
	// 第一轮计划作废, 第二轮从新的 nonce 快照重新开始
	assert.Equal(t, 2, wallet.nonceReads)
	assert.Equal(t, uint64(8), res.Reservation.Authorization)
	assert.Equal(t, []uint64{9, 10}, res.Reservation.Hooks)
}

func TestRunReplanBudgetIsBounded(t *testing.T) {
	wallet := newFakeWallet(5)
	wallet.executeErrs = []error{
		errno.ErrNonceConflict.Wrapf("GS026"),
		errno.ErrNonceConflict.Wrapf("GS026"),
		errno.ErrNonceConflict.Wrapf("GS026"),
	}
	api := &fakeVenue{sellAmount: "9999999999"}
	svc := newTestService(t, wallet, api)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, errno.ErrNonceConflict)
	assert.Equal(t, StageAborted, errno.StageOf(err))
	assert.Equal(t, 3, wallet.nonceReads)
}

func TestRunPresignFailureDegradesToManual(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{
		sellAmount: "9999999999",
		presignErr: venue.ErrServerError,
	}
	svc := newTestService(t, wallet, api)

	res, err := svc.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, errno.ErrPresignExecution)
	assert.Equal(t, StageAuthorized, errno.StageOf(err))

	// 订单仍然有效, 结果降级为待手动授权而不是整体中止
	require.NotNil(t, res)
	assert.Equal(t, StageSubmitted, res.Stage)
	assert.True(t, res.AuthorizationPending)
	assert.Equal(t, "0xdeadbeef-order-uid", res.OrderUID)
}

func TestAuthorizeOrder(t *testing.T) {
	wallet := newFakeWallet(9)
	api := &fakeVenue{sellAmount: "9999999999"}
	svc := newTestService(t, wallet, api)

	// 负 nonce 读链上当前值
	_, err := svc.AuthorizeOrder(context.Background(), "0xdeadbeef", -1)
	require.NoError(t, err)
	require.Len(t, wallet.executed, 1)
	assert.Equal(t, uint64(9), wallet.executed[0].Nonce)

	// 显式 nonce 原样使用
	_, err = svc.AuthorizeOrder(context.Background(), "0xdeadbeef", 4)
	require.NoError(t, err)
	require.Len(t, wallet.executed, 2)
	assert.Equal(t, uint64(4), wallet.executed[1].Nonce)
}

func TestRunSignFailureAbortsInPlanning(t *testing.T) {
	wallet := newFakeWallet(5)
	wallet.signErr = errno.ErrSignature.Wrapf("co-signer offline")
	api := &fakeVenue{sellAmount: "9999999999"}
	svc := newTestService(t, wallet, api)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, errno.ErrSignature)
	assert.Equal(t, StagePlanning, errno.StageOf(err))
	assert.Zero(t, api.submitCalls)
}

func TestRunQuoteUnavailableAborts(t *testing.T) {
	wallet := newFakeWallet(5)
	api := &fakeVenue{quoteErr: venue.ErrNoLiquidity}
	svc := newTestService(t, wallet, api)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.Error(t, err)

	assert.ErrorIs(t, err, errno.ErrQuoteUnavailable)
	assert.Equal(t, StageQuoted, errno.StageOf(err))
	assert.Zero(t, api.submitCalls)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashswap-core/internal/event"
	"flashswap-core/internal/service/mq"
	"flashswap-core/pkg/abiutil"
	"flashswap-core/pkg/appdata"
	"flashswap-core/pkg/config"
	"flashswap-core/pkg/crypto_util"
	"flashswap-core/pkg/errno"
	"flashswap-core/pkg/logger"
	"flashswap-core/pkg/monitor"
	"flashswap-core/pkg/retry"
	"flashswap-core/pkg/safe_random"
	"flashswap-core/pkg/utils/lock"
	"flashswap-core/pkg/venue"
)

// 工作流阶段。Planning -> Quoted -> Validated -> Submitted -> Authorized,
// 任何阶段失败进入 Aborted (Submitted 之后除外, 见 Run 的注释)。
const (
	StagePlanning   = "Planning"
	StageQuoted     = "Quoted"
	StageValidated  = "Validated"
	StageSubmitted  = "Submitted"
	StageAuthorized = "Authorized"
	StageAborted    = "Aborted"
)

// RunOptions 单次运行的开关。
type RunOptions struct {
	// ManualAuthorization 跳过自动预签名执行, 把授权留给操作员在钱包界面完成。
	ManualAuthorization bool
}

// Result 一次运行的终态。
type Result struct {
	Stage       string
	OrderUID    string
	AppDataHash string
	Fingerprint string
	Quote       *venue.Quote
	Reservation *NonceReservation

	// AuthorizationPending 订单已提交但授权未上链 (手动模式或自动执行失败降级)
	AuthorizationPending bool
	AuthorizationTxHash  string
}

// plan 规划阶段的产物: nonce 预留 + 自包含的元数据文档。
// 文档一旦组装完成就不再变动, 后续阶段只引用它的哈希。
type plan struct {
	reservation *NonceReservation
	doc         *appdata.Document
	docJSON     []byte
	docHash     common.Hash
	fingerprint string
	intent      venue.TradeIntent
}

// SwapService 驱动完整的抵押置换工作流。
// 无持久化状态: 每次 Run 都从链上 nonce 快照开始重新规划。
type SwapService struct {
	cfg      config.Config
	wallet   WalletService
	venueAPI VenueAPI
	producer mq.Producer
	locker   lock.DistributedLock // 可为 nil, 单实例部署不需要

	venuePolicy retry.Policy
}

// NewSwapService wires the workflow against a wallet service and a trading venue.
// producer 为 nil 时事件被丢弃; locker 为 nil 时跳过账户互斥。
func NewSwapService(cfg config.Config, wallet WalletService, venueAPI VenueAPI, producer mq.Producer, locker lock.DistributedLock) (*SwapService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errno.ErrConfig.Wrap(err)
	}
	if producer == nil {
		producer = mq.NopProducer{}
	}
	monitor.Init()

	return &SwapService{
		cfg:      cfg,
		wallet:   wallet,
		venueAPI: venueAPI,
		producer: producer,
		locker:   locker,
		venuePolicy: retry.Policy{
			Name:     "venue",
			Attempts: cfg.Retry.VenueAttempts,
			Base:     time.Duration(cfg.Retry.VenueBackoffMs) * time.Millisecond,
			Max:      30 * time.Second,
		},
	}, nil
}

// Run 执行一次完整的工作流。
//
// nonce 冲突 (规划和授权之间有别的写者动了 Safe) 会丢弃整个计划重来,
// 次数由 retry.replan_attempts 限定。订单提交成功之后的失败不再整体中止:
// 订单在场所侧仍然有效, 返回的 Result 带 AuthorizationPending,
// 操作员可以拿 OrderUID 去钱包界面手动授权。
func (s *SwapService) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retry.ReplanAttempts; attempt++ {
		res, err := s.runOnce(ctx, opts)
		if err == nil || !errors.Is(err, errno.ErrNonceConflict) {
			s.countRun(res, err)
			return res, err
		}

		lastErr = err
		monitor.Workflow.ReplansTotal.Inc()
		logger.Warn("nonce conflict, rebuilding plan",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.Retry.ReplanAttempts),
			zap.Error(err))
	}

	monitor.Workflow.RunsTotal.WithLabelValues("aborted").Inc()
	return nil, errno.AtStage(StageAborted,
		errno.ErrNonceConflict.Wrapf("gave up after %d plan rebuilds: %v", s.cfg.Retry.ReplanAttempts, lastErr))
}

func (s *SwapService) countRun(res *Result, err error) {
	switch {
	case res == nil || res.Stage == StageAborted:
		monitor.Workflow.RunsTotal.WithLabelValues("aborted").Inc()
	case res.AuthorizationPending:
		monitor.Workflow.RunsTotal.WithLabelValues("pending").Inc()
	default:
		monitor.Workflow.RunsTotal.WithLabelValues("authorized").Inc()
	}
}

func (s *SwapService) runOnce(ctx context.Context, opts RunOptions) (*Result, error) {
	safeAddr := s.wallet.Account().Address

	// 规划到授权的窗口内锁住账户, 避免两个进程基于同一个 nonce 快照各建一套计划
	if s.locker != nil {
		token, err := safe_random.GenerateRandomHexString(16)
		if err != nil {
			return nil, errno.AtStage(StagePlanning, err)
		}
		ttl := time.Duration(s.cfg.Redis.LockTTL) * time.Second
		ok, err := s.locker.Acquire(ctx, safeAddr.Hex(), token, ttl)
		if err != nil {
			return nil, errno.AtStage(StagePlanning, err)
		}
		if !ok {
			return nil, errno.AtStage(StagePlanning,
				errno.ErrNonceConflict.Wrapf("account %s is locked by another run", safeAddr.Hex()))
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), safeAddr.Hex(), token); err != nil {
				logger.Warn("failed to release account lock", zap.Error(err))
			}
		}()
	}

	p, err := s.buildPlan(ctx)
	if err != nil {
		return nil, errno.AtStage(StagePlanning, err)
	}

	quote, err := s.fetchQuote(ctx, p)
	if err != nil {
		return nil, errno.AtStage(StageQuoted, err)
	}

	ceiling, _ := new(big.Int).SetString(s.cfg.Loan.CollateralAmount, 10) // validated in NewSwapService
	if err := CheckBudget(quote, ceiling, s.cfg.Loan.CollateralTokenDecimals); err != nil {
		if errors.Is(err, errno.ErrBudgetExceeded) {
			monitor.Workflow.BudgetRejectsTotal.Inc()
			s.publishAborted(ctx, p, StageValidated, err.Error())
		}
		// 带上报价返回, 操作员要能看到被拒的实际成本
		return &Result{
			Stage:       StageAborted,
			Quote:       quote,
			Fingerprint: p.fingerprint,
			Reservation: p.reservation,
		}, errno.AtStage(StageValidated, err)
	}

	uid, err := s.submitOrder(ctx, p)
	if err != nil {
		return nil, errno.AtStage(StageSubmitted, err)
	}
	s.publishSubmitted(ctx, p, uid, quote)

	res := &Result{
		Stage:       StageSubmitted,
		OrderUID:    uid,
		AppDataHash: p.docHash.Hex(),
		Fingerprint: p.fingerprint,
		Quote:       quote,
		Reservation: p.reservation,
	}

	if opts.ManualAuthorization {
		// 授权 nonce 已预留但不由本系统消费, 操作员用它在钱包界面完成授权
		res.AuthorizationPending = true
		logger.Info("order submitted, authorization left to the operator",
			zap.String("order_uid", uid),
			zap.Uint64("authorization_nonce", p.reservation.Authorization))
		return res, nil
	}

	txHash, err := s.authorize(ctx, p, uid)
	if err != nil {
		if errors.Is(err, errno.ErrNonceConflict) {
			// 整个计划已失效, 交给 Run 的重规划循环
			return nil, err
		}
		// 订单仍然有效, 降级为手动授权而不是整体中止
		res.AuthorizationPending = true
		logger.Error("automated presign failed, order remains valid for manual authorization",
			zap.String("order_uid", uid),
			zap.Error(err))
		if !errors.Is(err, errno.ErrPresignExecution) {
			err = errno.ErrPresignExecution.Wrap(err)
		}
		return res, errno.AtStage(StageAuthorized, err)
	}

	res.Stage = StageAuthorized
	res.AuthorizationTxHash = txHash.Hex()
	s.publishAuthorized(ctx, p, uid, txHash)
	return res, nil
}

// buildPlan 读取 nonce 快照、构建并签名两笔预留交易、组装元数据文档。
func (s *SwapService) buildPlan(ctx context.Context) (*plan, error) {
	start := time.Now()
	defer s.observeStage(StagePlanning, start)

	current, err := s.wallet.CurrentNonce(ctx)
	if err != nil {
		return nil, err
	}
	reservation, err := ReserveNonces(current, 2)
	if err != nil {
		return nil, err
	}

	safeAddr := s.wallet.Account().Address
	borrowedToken := common.HexToAddress(s.cfg.Loan.BorrowedToken)
	collateralToken := common.HexToAddress(s.cfg.Loan.CollateralToken)
	lender := common.HexToAddress(s.cfg.Loan.LenderAddress)
	borrowedAmount, _ := new(big.Int).SetString(s.cfg.Loan.BorrowedAmount, 10)
	collateralAmount, _ := new(big.Int).SetString(s.cfg.Loan.CollateralAmount, 10)

	repayData, err := abiutil.LendingPool.Pack("repay", borrowedToken, borrowedAmount, variableRateMode, safeAddr)
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(err)
	}
	withdrawData, err := abiutil.LendingPool.Pack("withdraw", collateralToken, collateralAmount, safeAddr)
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(err)
	}

	// 还款在前, 取抵押在后。nonce 已经定好, 两笔可以并行签
	hooks, err := buildReservedHooks(ctx, s.wallet, []hookSpec{
		{Purpose: appdata.PurposeRepay, To: lender, Data: repayData, Nonce: reservation.Hooks[0]},
		{Purpose: appdata.PurposeWithdraw, To: lender, Data: withdrawData, Nonce: reservation.Hooks[1]},
	})
	if err != nil {
		return nil, err
	}

	doc, err := appdata.Assemble(appdata.FlashLoan{
		Lender: s.cfg.Loan.LenderAddress,
		Token:  s.cfg.Loan.BorrowedToken,
		Amount: s.cfg.Loan.BorrowedAmount,
	}, hooks, safeAddr.Hex(), s.cfg.Venue.AppCode)
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(err)
	}

	docJSON, err := doc.Marshal()
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(err)
	}
	docHash, err := doc.Hash()
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(err)
	}

	p := &plan{
		reservation: reservation,
		doc:         doc,
		docJSON:     docJSON,
		docHash:     docHash,
		fingerprint: crypto_util.CalculateBlake3(docJSON),
		intent: venue.TradeIntent{
			Kind:              venue.KindBuy,
			SellToken:         s.cfg.Loan.CollateralToken,
			SellTokenDecimals: s.cfg.Loan.CollateralTokenDecimals,
			BuyToken:          s.cfg.Loan.BorrowedToken,
			BuyTokenDecimals:  s.cfg.Loan.BorrowedTokenDecimals,
			Amount:            s.cfg.Loan.BorrowedAmount,
			Receiver:          s.cfg.Venue.SettlementContract,
			Env:               s.cfg.Venue.Env,
		},
	}

	logger.Info("plan built",
		zap.Uint64("authorization_nonce", reservation.Authorization),
		zap.Uint64s("hook_nonces", reservation.Hooks),
		zap.String("app_data_hash", docHash.Hex()),
		zap.String("fingerprint", p.fingerprint))
	return p, nil
}

// fetchQuote 带退避地向场所要报价。瞬时错误重试, 其余立即放弃。
func (s *SwapService) fetchQuote(ctx context.Context, p *plan) (*venue.Quote, error) {
	start := time.Now()
	defer s.observeStage(StageQuoted, start)

	var quote *venue.Quote
	err := s.venuePolicy.Do(ctx, func(ctx context.Context) error {
		var qErr error
		quote, qErr = s.venueAPI.Quote(ctx, p.intent, venue.QuoteOptions{
			From:          s.wallet.Account().Address.Hex(),
			SigningScheme: venue.SchemePreSign,
		})
		if qErr != nil && !venue.Transient(qErr) {
			return retry.Permanent(qErr)
		}
		if qErr != nil {
			monitor.Workflow.VenueRetriesTotal.Inc()
		}
		return qErr
	})
	if err != nil {
		return nil, errno.ErrQuoteUnavailable.Wrap(err)
	}
	return quote, nil
}

// submitOrder 提交订单, 重试前先按内容哈希查重, 避免把同一单提交两遍。
func (s *SwapService) submitOrder(ctx context.Context, p *plan) (string, error) {
	start := time.Now()
	defer s.observeStage(StageSubmitted, start)

	owner := s.wallet.Account().Address
	attempted := false

	var uid string
	err := s.venuePolicy.Do(ctx, func(ctx context.Context) error {
		if attempted {
			// 上一次尝试可能已经成功但响应丢了
			existing, lookupErr := s.venueAPI.OrderByAppData(ctx, owner, p.docHash.Hex())
			if lookupErr != nil {
				logger.Warn("duplicate-order lookup failed", zap.Error(lookupErr))
			} else if existing != nil {
				logger.Info("order already on venue, skipping resubmit",
					zap.String("order_uid", existing.UID))
				uid = existing.UID
				return nil
			}
		}
		attempted = true

		var subErr error
		uid, subErr = s.venueAPI.SubmitOrder(ctx, p.intent, venue.SubmitOptions{
			SigningScheme: venue.SchemePreSign,
			AppData:       string(p.docJSON),
			AppDataHash:   p.docHash.Hex(),
		})
		if subErr != nil && !venue.Transient(subErr) {
			return retry.Permanent(subErr)
		}
		if subErr != nil {
			monitor.Workflow.VenueRetriesTotal.Inc()
		}
		return subErr
	})
	if err != nil {
		return "", errno.ErrSubmission.Wrap(err)
	}

	logger.Info("order submitted", zap.String("order_uid", uid))
	return uid, nil
}

// AuthorizeOrder 对一个已提交的订单单独执行延迟授权。
// nonce 为负时使用链上当前 nonce。给 CLI 的 presign 命令用,
// 处理自动授权失败后订单滞留在待授权状态的场景。
func (s *SwapService) AuthorizeOrder(ctx context.Context, uid string, nonce int64) (common.Hash, error) {
	n := uint64(nonce)
	if nonce < 0 {
		current, err := s.wallet.CurrentNonce(ctx)
		if err != nil {
			return common.Hash{}, errno.AtStage(StageAuthorized, err)
		}
		n = current
	}

	txHash, err := s.authorize(ctx, &plan{reservation: &NonceReservation{Authorization: n}}, uid)
	if err != nil {
		return common.Hash{}, errno.AtStage(StageAuthorized, err)
	}
	return txHash, nil
}

// authorize 用预留的授权 nonce 执行预签名交易, 完成延迟授权。
func (s *SwapService) authorize(ctx context.Context, p *plan, uid string) (common.Hash, error) {
	start := time.Now()
	defer s.observeStage(StageAuthorized, start)

	ptx, err := s.venueAPI.PresignTransaction(uid, s.wallet.Account().Address)
	if err != nil {
		return common.Hash{}, err
	}

	to, err := abiutil.ParseAddress(ptx.To)
	if err != nil {
		return common.Hash{}, errno.ErrEncoding.Wrap(err)
	}
	data := common.FromHex(ptx.Data)

	tx, err := s.wallet.BuildTransaction(ctx, to, big.NewInt(0), data, p.reservation.Authorization)
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := s.wallet.Sign(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}
	return s.wallet.Execute(ctx, signed)
}

func (s *SwapService) observeStage(stage string, start time.Time) {
	monitor.Workflow.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// 事件发布失败只记日志, 不影响工作流结果

func (s *SwapService) publishSubmitted(ctx context.Context, p *plan, uid string, quote *venue.Quote) {
	s.publish(ctx, p.fingerprint, event.OrderSubmittedEvent{
		OrderUID:       uid,
		SafeAddress:    s.wallet.Account().Address.Hex(),
		AppDataHash:    p.docHash.Hex(),
		SellToken:      p.intent.SellToken,
		BuyToken:       p.intent.BuyToken,
		SellAmount:     quote.AfterSlippage.SellAmount,
		RunFingerprint: p.fingerprint,
	})
}

func (s *SwapService) publishAuthorized(ctx context.Context, p *plan, uid string, txHash common.Hash) {
	s.publish(ctx, p.fingerprint, event.OrderAuthorizedEvent{
		OrderUID:       uid,
		SafeAddress:    s.wallet.Account().Address.Hex(),
		TxHash:         txHash.Hex(),
		RunFingerprint: p.fingerprint,
	})
}

func (s *SwapService) publishAborted(ctx context.Context, p *plan, stage, reason string) {
	s.publish(ctx, p.fingerprint, event.RunAbortedEvent{
		SafeAddress:    s.wallet.Account().Address.Hex(),
		Stage:          stage,
		Reason:         reason,
		RunFingerprint: p.fingerprint,
	})
}

func (s *SwapService) publish(ctx context.Context, key string, evt interface{}) {
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	if err := s.producer.Publish(ctx, s.cfg.Kafka.Topic, key, payload); err != nil {
		logger.Error("failed to publish event", zap.Error(err))
	}
}

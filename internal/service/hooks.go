package service

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"flashswap-core/pkg/appdata"
	"flashswap-core/pkg/errno"
)

// hook 交易的 gas 上限, 进入元数据文档原样传给结算方
const hookGasLimit = "1000000"

// 借贷池还款的利率模式: 2 = 浮动利率
var variableRateMode = big.NewInt(2)

// hookSpec 一笔预留交易的构建参数。
// To 是多签内部调用的目标 (借贷池), 钩子本身的 target 永远是多签地址。
type hookSpec struct {
	Purpose string
	To      common.Address
	Data    []byte
	Nonce   uint64
}

// buildReservedHook 走完 build -> sign -> encode, 产出一个自包含的钩子。
// 编码产物里带齐签名, 结算方拿到就能执行, 不依赖本系统在线。
func buildReservedHook(ctx context.Context, wallet WalletService, spec hookSpec) (appdata.Hook, error) {
	tx, err := wallet.BuildTransaction(ctx, spec.To, big.NewInt(0), spec.Data, spec.Nonce)
	if err != nil {
		return appdata.Hook{}, err
	}
	signed, err := wallet.Sign(ctx, tx)
	if err != nil {
		return appdata.Hook{}, err
	}
	payload, err := wallet.Encode(signed)
	if err != nil {
		return appdata.Hook{}, errno.ErrEncoding.Wrap(err)
	}

	return appdata.Hook{
		Target:   wallet.Account().Address.Hex(),
		Value:    "0",
		CallData: hexutil.Encode(payload),
		GasLimit: hookGasLimit,
		Purpose:  spec.Purpose,
	}, nil
}

// buildReservedHooks 并发构建全部预留交易。
// nonce 在规划阶段已经分配好, 各笔交易互不依赖, 可以安全并行;
// 返回的切片保持 specs 的顺序, 保证还款钩子始终排在取抵押之前。
func buildReservedHooks(ctx context.Context, wallet WalletService, specs []hookSpec) ([]appdata.Hook, error) {
	hooks := make([]appdata.Hook, len(specs))
	errs := make([]error, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec hookSpec) {
			defer wg.Done()
			hooks[i], errs[i] = buildReservedHook(ctx, wallet, spec)
		}(i, spec)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return hooks, nil
}

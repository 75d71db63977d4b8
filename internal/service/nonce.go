package service

import (
	"math"

	"flashswap-core/pkg/errno"
)

// NonceReservation 一次计划周期内的 nonce 分配结果。
//
// 授权动作拿当前 nonce n, 预留交易依次拿 n+1, n+2, ...
// 这样场所合约在 nonce n 上完成授权后, 钩子交易正好按顺序可执行。
//
// 注意: 手动授权模式下 Authorization 这个 nonce 被预留但不会被本系统消费,
// 由操作员在钱包界面上用它完成授权。期间该账户不要发起其他交易。
type NonceReservation struct {
	Authorization uint64
	Hooks         []uint64
}

// ReserveNonces 根据链上 nonce 快照给授权动作和 count 笔预留交易分配 nonce。
func ReserveNonces(current uint64, count int) (*NonceReservation, error) {
	if count < 1 {
		return nil, errno.ErrNonceConflict.Wrapf("reserved transaction count must be positive, got %d", count)
	}
	if current > math.MaxUint64-uint64(count) {
		return nil, errno.ErrNonceConflict.Wrapf("nonce %d overflows with %d reservations", current, count)
	}

	r := &NonceReservation{
		Authorization: current,
		Hooks:         make([]uint64, count),
	}
	for i := 0; i < count; i++ {
		r.Hooks[i] = current + uint64(i) + 1
	}

	// 防御性检查: 分配结果必须两两不同
	seen := make(map[uint64]struct{}, count+1)
	seen[r.Authorization] = struct{}{}
	for _, n := range r.Hooks {
		if _, dup := seen[n]; dup {
			return nil, errno.ErrNonceConflict.Wrapf("duplicated nonce %d in reservation", n)
		}
		seen[n] = struct{}{}
	}
	return r, nil
}

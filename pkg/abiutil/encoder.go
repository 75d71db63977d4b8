package abiutil

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"flashswap-core/pkg/errno"
)

// Encoder 把 (方法名 + 类型化参数) 编码成 calldata。
// 纯函数，相同输入永远得到相同字节，appData 的字节级确定性依赖这一点。
type Encoder struct {
	abi abi.ABI
}

// NewEncoder parses a JSON ABI fragment into an Encoder.
func NewEncoder(fragment string) (*Encoder, error) {
	parsed, err := abi.JSON(strings.NewReader(fragment))
	if err != nil {
		return nil, errno.ErrEncoding.Wrap(err)
	}
	return &Encoder{abi: parsed}, nil
}

// MustNewEncoder 只用于包内置的 ABI 常量，fragment 非法直接 panic。
func MustNewEncoder(fragment string) *Encoder {
	e, err := NewEncoder(fragment)
	if err != nil {
		panic(err)
	}
	return e
}

// Pack encodes a method call. Argument count or type mismatches surface
// as ErrEncoding.
func (e *Encoder) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, errno.ErrEncoding.Wrapf("pack %s: %v", method, err)
	}
	return data, nil
}

// Unpack decodes a contract return value (e.g. the Safe nonce).
func (e *Encoder) Unpack(method string, data []byte) ([]interface{}, error) {
	out, err := e.abi.Unpack(method, data)
	if err != nil {
		return nil, errno.ErrEncoding.Wrapf("unpack %s: %v", method, err)
	}
	return out, nil
}

// ParseAddress 校验并解析地址字符串。
// 地址字段填了非法值属于编码错误，不可重试。
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errno.ErrEncoding.Wrapf("malformed address: %q", s)
	}
	return common.HexToAddress(s), nil
}

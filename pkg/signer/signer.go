package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidMnemonic = errors.New("无效的助记词")
	ErrInvalidPath     = errors.New("无效的派生路径")
)

// Signer 持有对 Safe 交易做 owner 签名的 EOA 私钥。
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromPrivateKey 从裸 Hex 私钥构造 Signer。
func FromPrivateKey(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// FromMnemonic 按 BIP-39/BIP-32 从助记词派生签名私钥。
// path 支持 m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0 两种写法。
func FromMnemonic(mnemonic, path string) (*Signer, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成 Master Key 失败: %w", err)
	}

	indices, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	key := masterKey
	for _, index := range indices {
		key, err = key.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %w", err)
		}
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("提取私钥失败: %w", err)
	}

	ecdsaKey := privKey.ToECDSA()
	return &Signer{key: ecdsaKey, address: crypto.PubkeyToAddress(ecdsaKey.PublicKey)}, nil
}

// NewMnemonic 生成一个新的 BIP-39 助记词 (128 bits entropy, 12 词)。
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// Address returns the signer's EOA address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Key returns the underlying ECDSA private key.
func (s *Signer) Key() *ecdsa.PrivateKey {
	return s.key
}

// SignDigest 对 32 字节摘要做 secp256k1 签名，返回 65 字节 [R || S || V]，V 为 27/28。
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("摘要长度必须为 32 字节, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	// go-ethereum 返回 V=0/1，链上校验要 27/28
	sig[64] += 27
	return sig, nil
}

// parsePath 解析形如 m/44'/60'/0'/0/0 的派生路径。
func parsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] != "m" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	indices := make([]uint32, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		hardened := false
		if strings.HasSuffix(seg, "'") || strings.HasSuffix(seg, "h") {
			hardened = true
			seg = seg[:len(seg)-1]
		}
		index, err := strconv.ParseUint(seg, 10, 32)
		if err != nil || index >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
		}
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}
		indices = append(indices, uint32(index))
	}
	return indices, nil
}

package signer

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BIP-39 标准测试助记词
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestFromMnemonicStandardVector(t *testing.T) {
	s, err := FromMnemonic(testMnemonic, "m/44'/60'/0'/0/0")
	require.NoError(t, err)

	// 该助记词在 m/44'/60'/0'/0/0 上的以太坊地址是公开的测试向量
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", s.Address().Hex())
}

func TestFromMnemonicHardenedNotation(t *testing.T) {
	a, err := FromMnemonic(testMnemonic, "m/44'/60'/0'/0/0")
	require.NoError(t, err)
	b, err := FromMnemonic(testMnemonic, "m/44h/60h/0h/0/0")
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())
}

func TestFromMnemonicRejectsInvalid(t *testing.T) {
	_, err := FromMnemonic("not a real mnemonic phrase at all", "m/44'/60'/0'/0/0")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	_, err = FromMnemonic(testMnemonic, "44'/60'/0'/0/0")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = FromMnemonic(testMnemonic, "m/44'/abc/0")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestFromPrivateKey(t *testing.T) {
	// 知名的 hardhat 测试私钥 #0
	s, err := FromPrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.Address().Hex())
}

func TestSignDigestRecoverable(t *testing.T) {
	s, err := FromPrivateKey("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	digest := crypto.Keccak256([]byte("payload"))
	sig, err := s.SignDigest(digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	// 恢复出的公钥要对得上签名者地址
	recovery := make([]byte, 65)
	copy(recovery, sig)
	recovery[64] -= 27
	pub, err := crypto.SigToPub(digest, recovery)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSignDigestRejectsBadLength(t *testing.T) {
	s, err := FromPrivateKey("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	_, err = s.SignDigest([]byte("short"))
	assert.Error(t, err)
}

func TestNewMnemonic(t *testing.T) {
	m, err := NewMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 12)

	_, err = FromMnemonic(m, "m/44'/60'/0'/0/0")
	assert.NoError(t, err)
}

package abiutil

// 借贷池合约面。只做编码，从不直接调用:
// calldata 会被装进 pre-hook，由结算方在清算交易里执行。
const lendingPoolABI = `[
  {
    "type": "function",
    "name": "repay",
    "inputs": [
      {"name": "asset", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "interestRateMode", "type": "uint256"},
      {"name": "onBehalfOf", "type": "address"}
    ],
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "nonpayable"
  },
  {
    "type": "function",
    "name": "withdraw",
    "inputs": [
      {"name": "asset", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "to", "type": "address"}
    ],
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "nonpayable"
  }
]`

// 结算合约的延迟授权入口。
const settlementABI = `[
  {
    "type": "function",
    "name": "setPreSignature",
    "inputs": [
      {"name": "orderUid", "type": "bytes"},
      {"name": "signed", "type": "bool"}
    ],
    "outputs": [],
    "stateMutability": "nonpayable"
  }
]`

// Safe 多签钱包的执行入口和 nonce 读口。
const safeABI = `[
  {
    "type": "function",
    "name": "execTransaction",
    "inputs": [
      {"name": "to", "type": "address"},
      {"name": "value", "type": "uint256"},
      {"name": "data", "type": "bytes"},
      {"name": "operation", "type": "uint8"},
      {"name": "safeTxGas", "type": "uint256"},
      {"name": "baseGas", "type": "uint256"},
      {"name": "gasPrice", "type": "uint256"},
      {"name": "gasToken", "type": "address"},
      {"name": "refundReceiver", "type": "address"},
      {"name": "signatures", "type": "bytes"}
    ],
    "outputs": [{"name": "success", "type": "bool"}],
    "stateMutability": "payable"
  },
  {
    "type": "function",
    "name": "nonce",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}],
    "stateMutability": "view"
  }
]`

var (
	// LendingPool encodes repay/withdraw hook calldata.
	LendingPool = MustNewEncoder(lendingPoolABI)
	// Settlement encodes the setPreSignature authorization call.
	Settlement = MustNewEncoder(settlementABI)
	// Safe encodes execTransaction payloads and decodes nonce() reads.
	Safe = MustNewEncoder(safeABI)
)

package appdata

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"flashswap-core/pkg/crypto_util"
)

// Hook 的用途标记。只用于本地校验顺序，不进入序列化文档。
const (
	PurposeRepay    = "repay"
	PurposeWithdraw = "withdraw"
)

// FlashLoan 描述借入的流动性。金额是基础单位的十进制字符串。
type FlashLoan struct {
	Lender string `json:"lender"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Hook 是嵌入订单元数据的预签名交易。
// 由结算方在清算交易内执行，本系统从不单独广播。
type Hook struct {
	Target   string `json:"target"`
	Value    string `json:"value"`
	CallData string `json:"callData"`
	GasLimit string `json:"gasLimit"`

	// Purpose 标记 hook 的业务含义 (repay / withdraw)，仅用于顺序校验
	Purpose string `json:"-"`
}

// Hooks 持有有序的 pre-hook 列表。post 预留扩展，始终为空。
type Hooks struct {
	Pre  []Hook `json:"pre"`
	Post []Hook `json:"post"`
}

// Metadata 是绑定到订单上的非价格条款。
type Metadata struct {
	Flashloan FlashLoan `json:"flashloan"`
	Hooks     Hooks     `json:"hooks"`
	Signer    string    `json:"signer"`
}

// Document 是订单引用的确定性元数据文档。
// 场所会对它算内容哈希并绑定到订单，任何不确定性都会让报价和提交脱节。
type Document struct {
	Metadata Metadata `json:"metadata"`
	AppCode  string   `json:"appCode,omitempty"`
}

// Assemble 组装元数据文档。
// 字段顺序由结构体定义固定，相同输入两次组装得到逐字节相同的文档。
func Assemble(loan FlashLoan, pre []Hook, signerAddress, appCode string) (*Document, error) {
	if loan.Lender == "" || loan.Token == "" || loan.Amount == "" {
		return nil, fmt.Errorf("flashloan terms incomplete: lender=%q token=%q amount=%q",
			loan.Lender, loan.Token, loan.Amount)
	}
	if signerAddress == "" {
		return nil, fmt.Errorf("signer address is required")
	}
	if len(pre) == 0 {
		return nil, fmt.Errorf("at least one pre-hook is required")
	}
	if err := validateHookOrder(pre); err != nil {
		return nil, err
	}

	hooks := Hooks{
		Pre:  append([]Hook(nil), pre...),
		Post: []Hook{}, // 序列化为 [] 而不是 null
	}

	return &Document{
		Metadata: Metadata{
			Flashloan: loan,
			Hooks:     hooks,
			Signer:    signerAddress,
		},
		AppCode: appCode,
	}, nil
}

// validateHookOrder 校验先还款后取抵押的顺序。
// 先取抵押会让账户在贷款未还时抵押不足，借贷池会在清算时拒绝。
func validateHookOrder(pre []Hook) error {
	repaySeen := false
	for i, h := range pre {
		switch h.Purpose {
		case PurposeRepay:
			repaySeen = true
		case PurposeWithdraw:
			if !repaySeen {
				return fmt.Errorf("hook %d: withdraw before repay violates unwind order", i)
			}
		}
	}
	return nil
}

// Marshal 序列化文档。encoding/json 按结构体字段顺序输出，无 map 迭代。
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Hash 计算文档的 keccak256 内容哈希，即订单携带的 appData 哈希。
func (d *Document) Hash() (common.Hash, error) {
	raw, err := d.Marshal()
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(crypto_util.Keccak256(raw)), nil
}

package event

// OrderSubmittedEvent 订单提交事件
// Topic: flashswap_order_events
type OrderSubmittedEvent struct {
	OrderUID       string `json:"order_uid"`
	SafeAddress    string `json:"safe_address"`
	AppDataHash    string `json:"app_data_hash"`
	SellToken      string `json:"sell_token"`
	BuyToken       string `json:"buy_token"`
	SellAmount     string `json:"sell_amount"` // 滑点后，基础单位
	RunFingerprint string `json:"run_fingerprint"`
}

// OrderAuthorizedEvent 订单授权事件。
// 自动预签名路径成功执行后发出；人工授权的订单不会产生这个事件。
type OrderAuthorizedEvent struct {
	OrderUID       string `json:"order_uid"`
	SafeAddress    string `json:"safe_address"`
	TxHash         string `json:"tx_hash"`
	RunFingerprint string `json:"run_fingerprint"`
}

// RunAbortedEvent 工作流中止事件
type RunAbortedEvent struct {
	SafeAddress    string `json:"safe_address"`
	Stage          string `json:"stage"`
	Reason         string `json:"reason"`
	RunFingerprint string `json:"run_fingerprint"`
}

package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashswap-core/pkg/abiutil"
	"flashswap-core/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// Client 交易场所的 HTTP 客户端。
// 报价、下单、查单走后端 API；授权交易的原料在本地用结算合约 ABI 组出来。
type Client struct {
	baseURL    string
	settlement common.Address
	httpClient *http.Client
}

// NewClient creates a venue client bound to the settlement contract.
func NewClient(baseURL string, settlement common.Address, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		settlement: settlement,
		httpClient: httpClient,
	}
}

type quoteRequest struct {
	TradeIntent
	QuoteOptions
}

// Quote requests a price estimate for the intent.
func (c *Client) Quote(ctx context.Context, intent TradeIntent, opts QuoteOptions) (*Quote, error) {
	var quote Quote
	err := c.post(ctx, "/api/v1/quote", quoteRequest{TradeIntent: intent, QuoteOptions: opts}, &quote)
	if err != nil {
		return nil, err
	}
	logger.Debug("quote received",
		zap.String("sell_after_slippage", quote.AfterSlippage.SellAmount),
		zap.String("buy_after_slippage", quote.AfterSlippage.BuyAmount))
	return &quote, nil
}

type submitRequest struct {
	TradeIntent
	SubmitOptions
}

type submitResponse struct {
	UID string `json:"uid"`
}

// SubmitOrder posts the order and returns the venue-assigned order UID.
// 不做重试: 重试和幂等检查由上层的生命周期控制器负责。
func (c *Client) SubmitOrder(ctx context.Context, intent TradeIntent, opts SubmitOptions) (string, error) {
	var resp submitResponse
	err := c.post(ctx, "/api/v1/orders", submitRequest{TradeIntent: intent, SubmitOptions: opts}, &resp)
	if err != nil {
		return "", err
	}
	if resp.UID == "" {
		return "", fmt.Errorf("venue returned an empty order uid")
	}
	return resp.UID, nil
}

// OrderByAppData 按 owner + appData 哈希查找已存在的订单。
// 重试提交前先调它，确认上一次提交是否其实已经成功。
func (c *Client) OrderByAppData(ctx context.Context, owner common.Address, appDataHash string) (*Order, error) {
	endpoint := fmt.Sprintf("/api/v1/account/%s/orders?appData=%s",
		owner.Hex(), url.QueryEscape(appDataHash))

	var orders []Order
	if err := c.get(ctx, endpoint, &orders); err != nil {
		if errors.Is(err, ErrNotFound) {
			// 这里的 404 意味着"没有订单"，不算瞬时错误
			return nil, nil
		}
		return nil, err
	}
	for i := range orders {
		if strings.EqualFold(orders[i].AppDataHash, appDataHash) {
			return &orders[i], nil
		}
	}
	return nil, nil
}

// PresignTransaction builds the deferred-authorization call for an order.
// setPreSignature 的 calldata 本地就能组出来，不需要问后端。
func (c *Client) PresignTransaction(orderUID string, account common.Address) (*PresignTransaction, error) {
	uid := common.FromHex(orderUID)
	if len(uid) == 0 {
		return nil, fmt.Errorf("malformed order uid: %q", orderUID)
	}
	data, err := abiutil.Settlement.Pack("setPreSignature", uid, true)
	if err != nil {
		return nil, err
	}
	return &PresignTransaction{
		To:    c.settlement.Hex(),
		Value: "0",
		Data:  "0x" + common.Bytes2Hex(data),
	}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return mapError(apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode venue response: %w", err)
	}
	return nil
}

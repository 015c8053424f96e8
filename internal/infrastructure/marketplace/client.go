package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/bundlesync/engine/internal/domain/integration"
	"github.com/bundlesync/engine/internal/domain/order"
)

const (
	orderPageSize = 200
	maxOrderPages = 100
)

// Client talks to the marketplace seller API. One Client serves every
// account; credentials travel with each call.
type Client struct {
	config ClientConfig
	reads  *resty.Client
	writes *resty.Client
	logger *zap.Logger

	polls singleflight.Group

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a marketplace client
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultClientConfig().UserAgent
	}

	writes := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	reads := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		config:   cfg,
		reads:    reads,
		writes:   writes,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// SubmitListing creates the listing, or updates it when payload.Update is set.
func (c *Client) SubmitListing(ctx context.Context, account integration.Account, payload integration.ListingPayload) (string, error) {
	body := productsRequest{Items: []productItem{toProductItem(payload)}}

	req, err := c.request(ctx, c.writes, account)
	if err != nil {
		return "", err
	}
	var accepted batchAccepted
	var apiErr apiError
	req.SetBody(body).SetResult(&accepted).SetError(&apiErr)

	url := productURL(account, "/products")
	var resp *resty.Response
	if payload.Update {
		resp, err = req.Put(url)
	} else {
		resp, err = req.Post(url)
	}
	if err := classify(resp, err, &apiErr); err != nil {
		return "", err
	}
	if accepted.BatchRequestID == "" {
		return "", integration.ErrMissingBatchID
	}

	c.logger.Debug("listing submitted",
		zap.String("account_id", account.AccountID),
		zap.String("sku", payload.SKU),
		zap.Bool("update", payload.Update),
		zap.String("batch_id", accepted.BatchRequestID),
	)
	return accepted.BatchRequestID, nil
}

// PollBatch fetches the state of a batch. Concurrent polls of the same batch
// share one request.
func (c *Client) PollBatch(ctx context.Context, account integration.Account, batchID string) (integration.BatchResult, error) {
	key := account.AccountID + "/" + batchID
	v, err, shared := c.polls.Do(key, func() (any, error) {
		return c.pollBatch(ctx, account, batchID)
	})
	if shared {
		c.logger.Debug("batch poll shared", zap.String("batch_id", batchID))
	}
	if err != nil {
		return integration.BatchResult{}, err
	}
	return v.(integration.BatchResult), nil
}

func (c *Client) pollBatch(ctx context.Context, account integration.Account, batchID string) (integration.BatchResult, error) {
	req, err := c.request(ctx, c.reads, account)
	if err != nil {
		return integration.BatchResult{}, err
	}
	var status batchStatus
	var apiErr apiError
	resp, err := req.
		SetResult(&status).
		SetError(&apiErr).
		SetPathParam("batchID", batchID).
		Get(productURL(account, "/products/batch-requests/{batchID}"))
	if err := classify(resp, err, &apiErr); err != nil {
		return integration.BatchResult{}, err
	}
	return toBatchResult(status), nil
}

// PushStock sends price and stock for an existing listing.
func (c *Client) PushStock(ctx context.Context, account integration.Account, update integration.StockUpdate) (string, error) {
	req, err := c.request(ctx, c.writes, account)
	if err != nil {
		return "", err
	}
	var accepted batchAccepted
	var apiErr apiError
	resp, err := req.
		SetBody(inventoryRequest{Items: []inventoryItem{{
			StockCode: update.SKU,
			Quantity:  update.Stock,
			SalePrice: update.Price.InexactFloat64(),
			ListPrice: listPriceOr(update.ListPrice, update.Price).InexactFloat64(),
		}}}).
		SetResult(&accepted).
		SetError(&apiErr).
		Post(account.BaseURL + "/inventory/sellers/" + account.SellerID + "/products/price-and-inventory")
	if err := classify(resp, err, &apiErr); err != nil {
		return "", err
	}
	if accepted.BatchRequestID == "" {
		return "", integration.ErrMissingBatchID
	}
	return accepted.BatchRequestID, nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders lists the order lines of packages modified in [since, until).
// Lines without a merchant SKU are skipped.
func (c *Client) FetchOrders(ctx context.Context, account integration.Account, since, until time.Time) ([]order.LineInput, error) {
	var lines []order.LineInput
	for page := 0; page < maxOrderPages; page++ {
		req, err := c.request(ctx, c.reads, account)
		if err != nil {
			return nil, err
		}
		var result ordersPage
		var apiErr apiError
		resp, err := req.
			SetQueryParams(map[string]string{
				"startDate":        strconv.FormatInt(since.UnixMilli(), 10),
				"endDate":          strconv.FormatInt(until.UnixMilli(), 10),
				"page":             strconv.Itoa(page),
				"size":             strconv.Itoa(orderPageSize),
				"orderByField":     "PackageLastModifiedDate",
				"orderByDirection": "ASC",
			}).
			SetResult(&result).
			SetError(&apiErr).
			Get(account.BaseURL + "/order/sellers/" + account.SellerID + "/orders")
		if err := classify(resp, err, &apiErr); err != nil {
			return nil, fmt.Errorf("orders page %d: %w", page, err)
		}

		for _, pkg := range result.Content {
			lines = append(lines, c.toLineInputs(account, pkg)...)
		}
		if page+1 >= result.TotalPages {
			return lines, nil
		}
	}
	c.logger.Warn("order pull hit the page cap",
		zap.String("account_id", account.AccountID),
		zap.Int("pages", maxOrderPages),
	)
	return lines, nil
}

func (c *Client) toLineInputs(account integration.Account, pkg orderPackage) []order.LineInput {
	occurred := time.UnixMilli(pkg.OrderDate).UTC()
	if pkg.OrderDate == 0 {
		occurred = time.UnixMilli(pkg.LastModifiedDate).UTC()
	}
	out := make([]order.LineInput, 0, len(pkg.Lines))
	for _, line := range pkg.Lines {
		if strings.TrimSpace(line.MerchantSKU) == "" {
			c.logger.Warn("order line without merchant sku skipped",
				zap.String("account_id", account.AccountID),
				zap.String("order_id", pkg.OrderNumber),
				zap.String("line_id", line.ID.String()),
			)
			continue
		}
		status := line.OrderLineItemStatusName
		if status == "" {
			status = pkg.Status
		}
		out = append(out, order.LineInput{
			OrderID:        pkg.OrderNumber,
			ExternalLineID: line.ID.String(),
			SKU:            line.MerchantSKU,
			Quantity:       line.Quantity,
			Status:         status,
			OccurredAt:     occurred,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// request waits for the account's rate limit and returns an authenticated request.
func (c *Client) request(ctx context.Context, client *resty.Client, account integration.Account) (*resty.Request, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if err := c.limiter(account.AccountID).Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMarketplaceUnavailable, err)
	}
	return client.R().
		SetContext(ctx).
		SetBasicAuth(account.APIKey, account.APISecret).
		SetHeader("User-Agent", fmt.Sprintf("%s (SellerID: %s)", c.config.UserAgent, account.SellerID)).
		SetHeader("storeFrontCode", account.StoreFrontCode), nil
}

func (c *Client) limiter(accountID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[accountID]
	if !ok {
		limit := rate.Inf
		if c.config.RateLimit > 0 {
			limit = rate.Limit(c.config.RateLimit)
		}
		burst := c.config.RateBurst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		c.limiters[accountID] = l
	}
	return l
}

// classify maps transport and HTTP failures onto the integration errors.
// Timeouts, connection errors, 429 and 5xx are transient; other 4xx are rejections.
func classify(resp *resty.Response, err error, body *apiError) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", integration.ErrMarketplaceUnavailable, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := body.text()
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	code := resp.StatusCode()
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d: %s", integration.ErrMarketplaceUnavailable, code, msg)
	}
	return fmt.Errorf("%w: status %d: %s", integration.ErrMarketplaceRejected, code, msg)
}

func productURL(account integration.Account, path string) string {
	return account.BaseURL + "/product/sellers/" + account.SellerID + path
}

// ---------------------------------------------------------------------------
// Mapping
// ---------------------------------------------------------------------------

func toProductItem(p integration.ListingPayload) productItem {
	return productItem{
		Barcode:       p.Barcode,
		StockCode:     p.SKU,
		Title:         p.Title,
		Description:   p.Description,
		ProductMainID: p.SKU,
		BrandID:       p.PlatformBrandID,
		CategoryID:    p.PlatformCategoryID,
		Quantity:      p.Stock,
		SalePrice:     p.Price.InexactFloat64(),
		ListPrice:     listPriceOr(p.ListPrice, p.Price).InexactFloat64(),
		VATRate:       p.VATRate,
	}
}

// listPriceOr falls back to price when no list price is set or it is lower.
func listPriceOr(list, price decimal.Decimal) decimal.Decimal {
	if list.LessThan(price) {
		return price
	}
	return list
}

func toBatchResult(s batchStatus) integration.BatchResult {
	var state integration.BatchState
	switch strings.ToUpper(s.Status) {
	case "COMPLETED":
		state = integration.BatchStateCompleted
	case "FAILED":
		state = integration.BatchStateFailed
	case "PENDING", "CREATED":
		state = integration.BatchStatePending
	default:
		state = integration.BatchStateProcessing
	}

	result := integration.BatchResult{State: state}
	if state != integration.BatchStateCompleted || len(s.Items) == 0 {
		return result
	}
	item := s.Items[0]
	result.ItemSucceeded = strings.EqualFold(item.Status, "SUCCESS")
	if !result.ItemSucceeded {
		result.FailureReasons = parseReasons(item.FailureReasons)
	}
	return result
}

// parseReasons accepts a list of strings, a list of {"message": ...} objects
// or a single string.
func parseReasons(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var texts []string
	if err := json.Unmarshal(raw, &texts); err == nil {
		return texts
	}
	var objects []struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &objects); err == nil {
		out := make([]string, 0, len(objects))
		for _, o := range objects {
			if o.Message != "" {
				out = append(out, o.Message)
			} else if o.Reason != "" {
				out = append(out, o.Reason)
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return []string{string(raw)}
}

var (
	_ integration.Marketplace = (*Client)(nil)
	_ integration.OrderFeed   = (*Client)(nil)
)

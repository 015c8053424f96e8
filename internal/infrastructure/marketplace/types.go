package marketplace

import "encoding/json"

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

type productItem struct {
	Barcode       string  `json:"barcode"`
	StockCode     string  `json:"stockCode"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	ProductMainID string  `json:"productMainId"`
	BrandID       string  `json:"brandId,omitempty"`
	CategoryID    string  `json:"categoryId,omitempty"`
	Quantity      int     `json:"quantity"`
	SalePrice     float64 `json:"salePrice"`
	ListPrice     float64 `json:"listPrice"`
	VATRate       int     `json:"vatRate"`
}

type productsRequest struct {
	Items []productItem `json:"items"`
}

type inventoryItem struct {
	StockCode string  `json:"stockCode"`
	Quantity  int     `json:"quantity"`
	SalePrice float64 `json:"salePrice"`
	ListPrice float64 `json:"listPrice"`
}

type inventoryRequest struct {
	Items []inventoryItem `json:"items"`
}

type batchAccepted struct {
	BatchRequestID string `json:"batchRequestId"`
}

// ---------------------------------------------------------------------------
// Batch status
// ---------------------------------------------------------------------------

type batchItem struct {
	Status         string          `json:"status"`
	FailureReasons json.RawMessage `json:"failureReasons"`
}

type batchStatus struct {
	BatchRequestID string      `json:"batchRequestId"`
	Status         string      `json:"status"`
	Items          []batchItem `json:"items"`
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

type orderLine struct {
	ID                      json.Number `json:"id"`
	MerchantSKU             string      `json:"merchantSku"`
	Quantity                int         `json:"quantity"`
	OrderLineItemStatusName string      `json:"orderLineItemStatusName"`
}

type orderPackage struct {
	ID               json.Number `json:"id"`
	OrderNumber      string      `json:"orderNumber"`
	OrderDate        int64       `json:"orderDate"`
	LastModifiedDate int64       `json:"lastModifiedDate"`
	Status           string      `json:"status"`
	Lines            []orderLine `json:"lines"`
}

type ordersPage struct {
	Content    []orderPackage `json:"content"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
}

// apiError is the error body the marketplace returns on 4xx and 5xx.
type apiError struct {
	Message string `json:"message"`
	Errors  []struct {
		Key     string `json:"key"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (e *apiError) text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	for _, item := range e.Errors {
		if item.Message != "" {
			return item.Message
		}
	}
	return ""
}

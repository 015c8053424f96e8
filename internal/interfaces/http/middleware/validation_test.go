package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bundlesync/engine/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type variantInput struct {
	SKU       string           `json:"sku" binding:"required,max=12,sku"`
	Stock     *int             `json:"stock" binding:"required,gte=0"`
	Price     decimal.Decimal  `json:"price" binding:"price"`
	ListPrice *decimal.Decimal `json:"list_price" binding:"omitempty,price"`
}

func bindRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.POST("/variants", func(c *gin.Context) {
		var in variantInput
		if err := c.ShouldBindJSON(&in); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func post(router *gin.Engine, body string) (*httptest.ResponseRecorder, dto.Response) {
	req := httptest.NewRequest(http.MethodPost, "/variants", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func fieldMessages(resp dto.Response) map[string]string {
	got := map[string]string{}
	if resp.Error == nil {
		return got
	}
	for _, d := range resp.Error.Details {
		got[d.Field] = d.Message
	}
	return got
}

func TestHandleValidationError(t *testing.T) {
	router := bindRouter()

	cases := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "length and bound",
			body: `{"sku":"MUCH-TOO-LONG-SKU","stock":-1,"price":"1.00"}`,
			want: map[string]string{
				"sku":   "Must be at most 12 characters",
				"stock": "Must be greater than or equal to 0",
			},
		},
		{
			name: "sku charset",
			body: `{"sku":"SKU A","stock":1,"price":"1.00"}`,
			want: map[string]string{"sku": "Only letters, digits, '.', '_' and '-' are allowed"},
		},
		{
			name: "negative price",
			body: `{"sku":"SKU-A","stock":1,"price":"-2"}`,
			want: map[string]string{"price": "Must be a non-negative amount with at most two decimals"},
		},
		{
			name: "sub-cent list price",
			body: `{"sku":"SKU-A","stock":1,"price":"2","list_price":"2.005"}`,
			want: map[string]string{"list_price": "Must be a non-negative amount with at most two decimals"},
		},
		{
			name: "missing fields",
			body: `{"price":"1"}`,
			want: map[string]string{"sku": "This field is required", "stock": "This field is required"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, resp := post(router, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
			assert.Equal(t, w.Header().Get(RequestIDHeader), resp.Error.RequestID)
			assert.Equal(t, tc.want, fieldMessages(resp))
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		w, resp := post(router, `{"sku":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
		assert.Empty(t, resp.Error.Details)
	})

	t.Run("valid body", func(t *testing.T) {
		w, _ := post(router, `{"sku":"sku-a.1","stock":3,"price":"19.99","list_price":"24.5"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

// Package testutil holds fixtures shared by the engine's package tests: an
// in-memory store with the full schema and helpers for driving gin handlers.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// HandlerCase drives one gin handler directly, without a router.
type HandlerCase struct {
	Name   string
	Method string // GET when empty
	Path   string
	Body   any
	Params gin.Params

	Status    int
	ErrorCode string // checked against error.code when set
}

// RunHandlerCases runs every case as a subtest.
func RunHandlerCases(t *testing.T, handler gin.HandlerFunc, cases ...HandlerCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			RunHandlerCase(t, handler, tc)
		})
	}
}

// RunHandlerCase calls handler with the case's request and checks the
// status and error code. It returns the recorder for further checks.
func RunHandlerCase(t *testing.T, handler gin.HandlerFunc, tc HandlerCase) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if tc.Body != nil {
		data, err := json.Marshal(tc.Body)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	method := tc.Method
	if method == "" {
		method = http.MethodGet
	}
	path := tc.Path
	if path == "" {
		path = "/"
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, body)
	if tc.Body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	c.Params = tc.Params
	handler(c)

	if tc.Status != 0 {
		assert.Equal(t, tc.Status, w.Code, "status of %s %s", method, path)
	}
	if tc.ErrorCode != "" {
		var resp struct {
			Success bool `json:"success"`
			Error   *struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error, "response carries no error object")
		assert.Equal(t, tc.ErrorCode, resp.Error.Code)
	}
	return w
}

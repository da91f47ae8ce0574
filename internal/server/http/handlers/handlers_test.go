package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/server/http/dto"
	"github.com/polkiloo/stockpoints/internal/server/http/middleware"
	testhelpers "github.com/polkiloo/stockpoints/internal/test"
	"github.com/polkiloo/stockpoints/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(t *testing.T, method, path string, handler gin.HandlerFunc, setup func(*gin.Context), body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.Handle(method, path, func(c *gin.Context) {
		if setup != nil {
			setup(c)
		}
		handler(c)
	})

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCurrentUserID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := CurrentUserID(c); got != 0 {
		t.Fatalf("expected 0 when not set, got %d", got)
	}

	c.Set(middleware.UserIDContextKey, int64(42))
	if got := CurrentUserID(c); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestAuthHandlerRegisterReturnsSession(t *testing.T) {
	login := testhelpers.RandomLogin(10)
	body, _ := json.Marshal(dto.AuthRequest{Login: login, Password: "s3cret"})
	handler := NewAuthHandler(testhelpers.AuthFacadeStub{RegisterFn: func(ctx context.Context, gotLogin, gotPassword string) (*model.Session, error) {
		if gotLogin != login || gotPassword != "s3cret" {
			t.Fatalf("unexpected credentials passed to facade: %q %q", gotLogin, gotPassword)
		}
		return &model.Session{UserID: 7, Token: "session-token", Points: 50}, nil
	}})
	resp := performRequest(t, http.MethodPost, "/register", handler.Register, nil, body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Authorization"); got != "Bearer session-token" {
		t.Fatalf("unexpected authorization header %q", got)
	}
	var payload dto.AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.UserID != 7 || payload.Points != 50 {
		t.Fatalf("unexpected session payload %+v", payload)
	}

	result := resp.Result()
	t.Cleanup(func() {
		_ = result.Body.Close()
	})
	var cookie *http.Cookie
	for _, c := range result.Cookies() {
		if c.Name == "stockpoints_token" {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != "session-token" {
		t.Fatalf("expected stockpoints_token cookie with session token, got %+v", cookie)
	}
}

func TestAuthHandlerFailures(t *testing.T) {
	failing := func(err error) func(context.Context, string, string) (*model.Session, error) {
		return func(context.Context, string, string) (*model.Session, error) { return nil, err }
	}
	creds := []byte(`{"login":"a","password":"b"}`)
	tests := []struct {
		name   string
		login  bool
		facade testhelpers.AuthFacadeStub
		body   []byte
		status int
		code   string
	}{
		{name: "register bad json", body: []byte("not json"), status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "register invalid credentials", body: []byte(`{"login":"","password":""}`), facade: testhelpers.AuthFacadeStub{RegisterFn: failing(domainErrors.ErrInvalidCredentials)}, status: http.StatusBadRequest, code: "INVALID_CREDENTIALS"},
		{name: "register login taken", body: creds, facade: testhelpers.AuthFacadeStub{RegisterFn: failing(domainErrors.ErrAlreadyExists)}, status: http.StatusConflict, code: "LOGIN_TAKEN"},
		{name: "register internal", body: creds, facade: testhelpers.AuthFacadeStub{RegisterFn: failing(errors.New("boom"))}, status: http.StatusInternalServerError, code: "INTERNAL"},
		{name: "login bad json", login: true, body: []byte("not json"), status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "login wrong password", login: true, body: creds, facade: testhelpers.AuthFacadeStub{AuthenticateFn: failing(domainErrors.ErrInvalidCredentials)}, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
		{name: "login internal", login: true, body: creds, facade: testhelpers.AuthFacadeStub{AuthenticateFn: failing(errors.New("boom"))}, status: http.StatusInternalServerError, code: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(tt.facade)
			path, handler := "/register", h.Register
			if tt.login {
				path, handler = "/login", h.Login
			}
			resp := performRequest(t, http.MethodPost, path, handler, nil, tt.body, map[string]string{"Content-Type": "application/json"})
			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.Code)
			}
			var payload dto.ErrorResponse
			if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, payload.Code)
			}
			if resp.Header().Get("Authorization") != "" {
				t.Fatal("failed auth must not set a token")
			}
		})
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	body, _ := json.Marshal(dto.AuthRequest{Login: "user", Password: "pass"})
	handler := NewAuthHandler(testhelpers.AuthFacadeStub{AuthenticateFn: func(context.Context, string, string) (*model.Session, error) {
		return &model.Session{UserID: 3, Token: "t", Points: 120}, nil
	}})
	resp := performRequest(t, http.MethodPost, "/login", handler.Login, nil, body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var payload dto.AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Points != 120 {
		t.Fatalf("expected balance in login response, got %+v", payload)
	}
}

func withUser(id int64) func(*gin.Context) {
	return func(c *gin.Context) { c.Set(middleware.UserIDContextKey, id) }
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestBalanceHandlerBalance(t *testing.T) {
	var gotUser int64
	facade := testhelpers.LedgerFacadeStub{BalanceFn: func(_ context.Context, userID int64) (int64, error) {
		gotUser = userID
		return 70, nil
	}}
	resp := performRequest(t, http.MethodGet, "/balance", NewBalanceHandler(facade).Balance, withUser(7), nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body dto.BalanceResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Points != 70 || gotUser != 7 {
		t.Fatalf("unexpected balance %d for user %d", body.Points, gotUser)
	}

	facade.BalanceFn = func(context.Context, int64) (int64, error) { return 0, errors.New("db down") }
	resp = performRequest(t, http.MethodGet, "/balance", NewBalanceHandler(facade).Balance, withUser(7), nil, nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if decodeError(t, resp).Code != "INTERNAL" {
		t.Fatalf("expected INTERNAL code")
	}
}

func TestBalanceHandlerTransactions(t *testing.T) {
	resp := performRequest(t, http.MethodGet, "/transactions", NewBalanceHandler(testhelpers.LedgerFacadeStub{}).Transactions, withUser(1), nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body []dto.TransactionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 || body[0].Reason != "PURCHASE" || !body[0].CreatedAt.Equal(time.Unix(0, 0)) {
		t.Fatalf("unexpected transactions %+v", body)
	}

	empty := testhelpers.LedgerFacadeStub{TransactionsFn: func(context.Context, int64) ([]model.Transaction, error) { return nil, nil }}
	resp = performRequest(t, http.MethodGet, "/transactions", NewBalanceHandler(empty).Transactions, withUser(1), nil, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestBalanceHandlerAdjust(t *testing.T) {
	body, _ := json.Marshal(dto.AdjustRequest{UserID: 3, Delta: -20, Reference: "fix"})
	resp := performRequest(t, http.MethodPost, "/adjust", NewBalanceHandler(testhelpers.LedgerFacadeStub{}).Adjust, nil, body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out dto.AdjustResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Points != 80 || out.UserID != 3 {
		t.Fatalf("unexpected adjust response %+v", out)
	}

	resp = performRequest(t, http.MethodPost, "/adjust", NewBalanceHandler(testhelpers.LedgerFacadeStub{}).Adjust, nil, []byte(`{"delta":5}`), map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without user, got %d", resp.Code)
	}

	short := testhelpers.LedgerFacadeStub{AdjustFn: func(context.Context, int64, int64, string) (*model.Balance, error) {
		return nil, &domainErrors.InsufficientBalanceError{UserID: 3, Required: 20, Available: 5}
	}}
	resp = performRequest(t, http.MethodPost, "/adjust", NewBalanceHandler(short).Adjust, nil, body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.Code)
	}
	errBody := decodeError(t, resp)
	if errBody.Shortfall == nil || *errBody.Shortfall != 15 {
		t.Fatalf("expected shortfall 15, got %+v", errBody)
	}
}

func TestBatchHandlerSubmit(t *testing.T) {
	body, _ := json.Marshal(dto.BatchRequest{Items: []dto.BatchItemRequest{{Site: "stock", AssetID: "a"}, {Site: "stock", AssetID: "b"}}})
	resp := performRequest(t, http.MethodPost, "/batches", NewBatchHandler(testhelpers.BatchFacadeStub{}).Submit, withUser(1), body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out dto.BatchResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.State != "ALL_SUCCEEDED" || len(out.Items) != 2 || out.Items[1].DownloadURL != "https://cdn.example/b" {
		t.Fatalf("unexpected batch response %+v", out)
	}
	if out.NewBalance != 80 {
		t.Fatalf("expected new balance 80, got %d", out.NewBalance)
	}
}

func TestBatchHandlerSubmitAsync(t *testing.T) {
	body, _ := json.Marshal(dto.BatchRequest{Items: []dto.BatchItemRequest{{Site: "stock", AssetID: "a"}}})
	router := gin.New()
	router.POST("/batches", func(c *gin.Context) {
		c.Set(middleware.UserIDContextKey, int64(1))
		NewBatchHandler(testhelpers.BatchFacadeStub{}).Submit(c)
	})
	req := httptest.NewRequest(http.MethodPost, "/batches?wait=false", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if resp.Header().Get("Location") != "/api/user/batches/batch-1" {
		t.Fatalf("unexpected location %q", resp.Header().Get("Location"))
	}
}

func TestBatchHandlerSubmitFailures(t *testing.T) {
	valid, _ := json.Marshal(dto.BatchRequest{Items: []dto.BatchItemRequest{{Site: "stock", AssetID: "a"}}})
	tests := []struct {
		name   string
		body   []byte
		err    error
		result *model.BatchResult
		status int
		code   string
	}{
		{name: "malformed", body: []byte("{"), status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "unauthenticated", body: valid, err: domainErrors.ErrUnauthenticated, status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "empty", body: valid, err: domainErrors.ErrEmptyBatch, status: http.StatusBadRequest, code: "EMPTY_BATCH"},
		{name: "too large", body: valid, err: domainErrors.ErrBatchTooLarge, status: http.StatusBadRequest, code: "BATCH_TOO_LARGE"},
		{name: "invalid item", body: valid, err: domainErrors.ErrInvalidItem, status: http.StatusBadRequest, code: "INVALID_ITEM"},
		{name: "insufficient", body: valid, err: &domainErrors.InsufficientBalanceError{Required: 30, Available: 10}, status: http.StatusPaymentRequired, code: "INSUFFICIENT_BALANCE"},
		{name: "no valid items", body: valid, err: domainErrors.ErrNoValidItems, result: &model.BatchResult{State: model.BatchStateAllFailed}, status: http.StatusUnprocessableEntity, code: "NO_VALID_ITEMS"},
		{name: "shutting down", body: valid, err: worker.ErrSchedulerStopped, status: http.StatusServiceUnavailable, code: "SHUTTING_DOWN"},
		{name: "internal", body: valid, err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facade := testhelpers.BatchFacadeStub{SubmitFn: func(context.Context, int64, []model.AssetRequest) (*model.BatchResult, error) {
				return tt.result, tt.err
			}}
			resp := performRequest(t, http.MethodPost, "/batches", NewBatchHandler(facade).Submit, withUser(1), tt.body, map[string]string{"Content-Type": "application/json"})
			if resp.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.Code)
			}
			if got := decodeError(t, resp).Code; got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestBatchHandlerRateLimited(t *testing.T) {
	facade := testhelpers.BatchFacadeStub{SubmitFn: func(context.Context, int64, []model.AssetRequest) (*model.BatchResult, error) {
		return nil, &domainErrors.RateLimitedError{RetryAfter: 2500 * time.Millisecond}
	}}
	body, _ := json.Marshal(dto.BatchRequest{Items: []dto.BatchItemRequest{{Site: "stock", AssetID: "a"}}})
	resp := performRequest(t, http.MethodPost, "/batches", NewBatchHandler(facade).Submit, withUser(1), body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "3" {
		t.Fatalf("expected Retry-After 3, got %q", resp.Header().Get("Retry-After"))
	}
}

func TestBatchHandlerSubmitCanceledReturnsSnapshot(t *testing.T) {
	facade := testhelpers.BatchFacadeStub{SubmitFn: func(context.Context, int64, []model.AssetRequest) (*model.BatchResult, error) {
		return &model.BatchResult{BatchID: "b-9", State: model.BatchStateInProgress}, context.DeadlineExceeded
	}}
	body, _ := json.Marshal(dto.BatchRequest{Items: []dto.BatchItemRequest{{Site: "stock", AssetID: "a"}}})
	resp := performRequest(t, http.MethodPost, "/batches", NewBatchHandler(facade).Submit, withUser(1), body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
}

func TestBatchHandlerSubmitDuringShutdownReturnsSnapshot(t *testing.T) {
	facade := testhelpers.BatchFacadeStub{SubmitFn: func(context.Context, int64, []model.AssetRequest) (*model.BatchResult, error) {
		return &model.BatchResult{BatchID: "b-3", State: model.BatchStateInProgress}, worker.ErrSchedulerStopped
	}}
	body, _ := json.Marshal(dto.BatchRequest{Items: []dto.BatchItemRequest{{Site: "stock", AssetID: "a"}}})
	resp := performRequest(t, http.MethodPost, "/batches", NewBatchHandler(facade).Submit, withUser(1), body, map[string]string{"Content-Type": "application/json"})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	var payload dto.BatchResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.BatchID != "b-3" || payload.State != string(model.BatchStateInProgress) {
		t.Fatalf("unexpected snapshot %+v", payload)
	}
}

func TestBatchHandlerStatus(t *testing.T) {
	facade := testhelpers.BatchFacadeStub{StatusFn: func(_ context.Context, userID int64, batchID string) (*model.BatchStatus, error) {
		if batchID != "b-1" {
			return nil, domainErrors.ErrNotFound
		}
		return &model.BatchStatus{BatchID: batchID, State: model.BatchStatePartial, TotalCost: 70, Items: []model.ItemResult{
			{Position: 0, Outcome: model.ItemSucceeded, Cost: 30},
			{Position: 1, Outcome: model.ItemFailed, Reason: model.FailureTimeout, Cost: 40, Refunded: 40},
		}}, nil
	}}

	router := gin.New()
	router.GET("/batches/:id", func(c *gin.Context) {
		c.Set(middleware.UserIDContextKey, int64(1))
		NewBatchHandler(facade).Status(c)
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/batches/b-1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out dto.BatchStatusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.State != "PARTIAL" || out.Items[1].Reason != "TIMEOUT" || out.Items[1].Refunded != 40 {
		t.Fatalf("unexpected status %+v", out)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/batches/other", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	resp := performRequest(t, http.MethodGet, "/health", NewHealthHandler(testhelpers.StockFacadeStub{}).Check, nil, nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	down := testhelpers.StockFacadeStub{HealthFn: func(context.Context) error { return errors.New("down") }}
	resp = performRequest(t, http.MethodGet, "/health", NewHealthHandler(down).Check, nil, nil, nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

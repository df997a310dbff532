package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zeyadhelal16/bank-system/internal/middleware"
	"github.com/zeyadhelal16/bank-system/internal/model"
	"github.com/zeyadhelal16/bank-system/internal/repository"
	"github.com/zeyadhelal16/bank-system/internal/service"
	"github.com/zeyadhelal16/bank-system/internal/session"
)

type stubService struct {
	registerCustomerResp *model.Customer
	registerCustomerErr  error

	registerEmployeeResp *model.Employee
	registerEmployeeErr  error

	authProfile *service.Profile
	authErr     error

	profileResp *service.Profile
	profileErr  error

	depositAccountID string
	depositBalance   int64
	depositErr       error

	withdrawAccountID string
	withdrawBalance   int64
	withdrawErr       error

	transferFrom    string
	transferTo      string
	transferBalance int64
	transferErr     error

	balanceResp *model.Customer
	balanceErr  error

	customerBalanceResp *model.Customer
	customerBalanceErr  error

	transactionsResp []model.Transaction
	transactionsErr  error

	customersResp []model.Customer
	customersErr  error

	employeesResp []model.Employee
	employeesErr  error
}

func (s *stubService) RegisterCustomer(ctx context.Context, name, email, password string, initialDeposit float64) (*model.Customer, error) {
	return s.registerCustomerResp, s.registerCustomerErr
}

func (s *stubService) RegisterEmployee(ctx context.Context, name, email, password, department string) (*model.Employee, error) {
	return s.registerEmployeeResp, s.registerEmployeeErr
}

func (s *stubService) Authenticate(ctx context.Context, email, password string, role model.Role) (*service.Profile, error) {
	return s.authProfile, s.authErr
}

func (s *stubService) GetProfile(ctx context.Context, actor model.Actor) (*service.Profile, error) {
	return s.profileResp, s.profileErr
}

func (s *stubService) Deposit(ctx context.Context, actor model.Actor, accountID string, amount float64) (string, int64, error) {
	return s.depositAccountID, s.depositBalance, s.depositErr
}

func (s *stubService) Withdraw(ctx context.Context, actor model.Actor, accountID string, amount float64) (string, int64, error) {
	return s.withdrawAccountID, s.withdrawBalance, s.withdrawErr
}

func (s *stubService) Transfer(ctx context.Context, actor model.Actor, fromIdentifier, toIdentifier string, amount float64) (string, string, int64, error) {
	return s.transferFrom, s.transferTo, s.transferBalance, s.transferErr
}

func (s *stubService) GetBalance(ctx context.Context, actor model.Actor) (*model.Customer, error) {
	return s.balanceResp, s.balanceErr
}

func (s *stubService) GetCustomerBalance(ctx context.Context, actor model.Actor, accountID string) (*model.Customer, error) {
	return s.customerBalanceResp, s.customerBalanceErr
}

func (s *stubService) ListTransactions(ctx context.Context, actor model.Actor) ([]model.Transaction, error) {
	return s.transactionsResp, s.transactionsErr
}

func (s *stubService) ListCustomers(ctx context.Context, actor model.Actor) ([]model.Customer, error) {
	return s.customersResp, s.customersErr
}

func (s *stubService) ListEmployees(ctx context.Context, actor model.Actor) ([]model.Employee, error) {
	return s.employeesResp, s.employeesErr
}

func setupRouter(svc Service) (*chi.Mux, *session.Store) {
	sessions := session.NewStore(time.Hour)
	auth := middleware.NewAuthMiddleware(sessions)
	h := NewHandler(svc, sessions, zap.NewNop(), auth)
	return h.SetupRouter(), sessions
}

func authorize(t *testing.T, sessions *session.Store, actor model.Actor) string {
	t.Helper()
	token, err := sessions.Create(actor)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token
}

func doJSON(t *testing.T, router http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestDepositSuccess(t *testing.T) {
	svc := &stubService{depositAccountID: "CUS-A", depositBalance: 15000}
	router, sessions := setupRouter(svc)
	token := authorize(t, sessions, model.Actor{Role: model.RoleCustomer, ID: "CUS-A"})

	rec := doJSON(t, router, http.MethodPost, "/api/transactions/deposit", token,
		map[string]any{"amount": 50.0})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["accountId"] != "CUS-A" || body["balance"] != 150.0 {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestDepositRequiresAuth(t *testing.T) {
	router, _ := setupRouter(&stubService{})

	rec := doJSON(t, router, http.MethodPost, "/api/transactions/deposit", "",
		map[string]any{"amount": 50.0})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestDepositErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid amount", err: service.ErrInvalidAmount, want: http.StatusBadRequest},
		{name: "account required", err: service.ErrAccountIDRequired, want: http.StatusBadRequest},
		{name: "foreign account", err: service.ErrUnauthorized, want: http.StatusForbidden},
		{name: "not found", err: repository.ErrCustomerNotFound, want: http.StatusNotFound},
		{name: "persistence failure", err: errors.New("connection refused"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, sessions := setupRouter(&stubService{depositErr: tt.err})
			token := authorize(t, sessions, model.Actor{Role: model.RoleCustomer, ID: "CUS-A"})

			rec := doJSON(t, router, http.MethodPost, "/api/transactions/deposit", token,
				map[string]any{"amount": 50.0})

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if body := decodeBody(t, rec); body["error"] == "" {
				t.Error("error response must carry an error message")
			}
		})
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	router, sessions := setupRouter(&stubService{withdrawErr: repository.ErrInsufficientFunds})
	token := authorize(t, sessions, model.Actor{Role: model.RoleCustomer, ID: "CUS-A"})

	rec := doJSON(t, router, http.MethodPost, "/api/transactions/withdraw", token,
		map[string]any{"amount": 1000.0})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Insufficient funds" {
		t.Errorf("unexpected error message: %v", body["error"])
	}
}

func TestTransferSuccess(t *testing.T) {
	svc := &stubService{transferFrom: "CUS-A", transferTo: "CUS-B", transferBalance: 13500}
	router, sessions := setupRouter(svc)
	token := authorize(t, sessions, model.Actor{Role: model.RoleCustomer, ID: "CUS-A"})

	rec := doJSON(t, router, http.MethodPost, "/api/transactions/transfer", token,
		map[string]any{"toAccountId": "CUS-B", "amount": 15.0})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["fromAccount"] != "CUS-A" || body["toAccount"] != "CUS-B" || body["senderBalance"] != 135.0 {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestTransferSenderNotFound(t *testing.T) {
	svc := &stubService{transferErr: repository.ErrSenderNotFound}
	router, sessions := setupRouter(svc)
	token := authorize(t, sessions, model.Actor{Role: model.RoleEmployee, ID: "EMP-1"})

	rec := doJSON(t, router, http.MethodPost, "/api/transactions/transfer", token,
		map[string]any{"fromAccountId": "CUS-GHOST", "toAccountId": "CUS-B", "amount": 15.0})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLoginLogoutLifecycle(t *testing.T) {
	customer := &model.Customer{
		ID:        "CUS-A",
		Name:      "Alice",
		Email:     "alice@bank.io",
		CreatedAt: time.Now().UTC(),
	}
	svc := &stubService{
		authProfile: &service.Profile{Role: model.RoleCustomer, Customer: customer},
		profileResp: &service.Profile{Role: model.RoleCustomer, Customer: customer},
	}
	router, _ := setupRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "",
		map[string]any{"email": "alice@bank.io", "password": "secret", "role": "customer"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", rec.Code)
	}

	token, _ := decodeBody(t, rec)["token"].(string)
	if token == "" {
		t.Fatal("login must return a session token")
	}

	rec = doJSON(t, router, http.MethodGet, "/api/account/profile", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", rec.Code)
	}

	// После выхода токен отозван.
	rec = doJSON(t, router, http.MethodGet, "/api/account/profile", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("post-logout profile status = %d, want 401", rec.Code)
	}
}

func TestLoginRejectsUnknownRole(t *testing.T) {
	router, _ := setupRouter(&stubService{})

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "",
		map[string]any{"email": "a@b.c", "password": "x", "role": "admin"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	router, _ := setupRouter(&stubService{authErr: service.ErrInvalidCredentials})

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "",
		map[string]any{"email": "a@b.c", "password": "x", "role": "customer"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetBalanceForbiddenForEmployee(t *testing.T) {
	router, sessions := setupRouter(&stubService{balanceErr: service.ErrRoleNotPermitted})
	token := authorize(t, sessions, model.Actor{Role: model.RoleEmployee, ID: "EMP-1"})

	rec := doJSON(t, router, http.MethodGet, "/api/account/balance", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestTransactionsResponseShape(t *testing.T) {
	deposit := model.NewTransaction(model.TransactionDeposit, 5000, "", "CUS-A",
		model.Actor{Role: model.RoleCustomer, ID: "CUS-A"})
	router, sessions := setupRouter(&stubService{transactionsResp: []model.Transaction{deposit}})
	token := authorize(t, sessions, model.Actor{Role: model.RoleCustomer, ID: "CUS-A"})

	rec := doJSON(t, router, http.MethodGet, "/api/account/transactions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	items, ok := body["transactions"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected transactions payload: %v", body)
	}

	record := items[0].(map[string]any)
	if record["type"] != "deposit" || record["amount"] != 50.0 {
		t.Errorf("record fields are wrong: %v", record)
	}
	// Отсутствующая сторона сериализуется как null, а не как пустая строка.
	if record["fromAccount"] != nil {
		t.Errorf("fromAccount = %v, want null", record["fromAccount"])
	}
	if record["toAccount"] != "CUS-A" {
		t.Errorf("toAccount = %v, want CUS-A", record["toAccount"])
	}
}

func TestListCustomersStripsCredentials(t *testing.T) {
	customers := []model.Customer{{
		ID:           "CUS-A",
		Name:         "Alice",
		Email:        "alice@bank.io",
		PasswordHash: "deadbeef",
		BalanceCents: 100,
		CreatedAt:    time.Now().UTC(),
	}}
	router, sessions := setupRouter(&stubService{customersResp: customers})
	token := authorize(t, sessions, model.Actor{Role: model.RoleEmployee, ID: "EMP-1"})

	rec := doJSON(t, router, http.MethodGet, "/api/customers", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("deadbeef")) {
		t.Error("credential material must never be serialized")
	}
}

func TestRegisterCustomerValidation(t *testing.T) {
	router, _ := setupRouter(&stubService{registerCustomerErr: repository.ErrEmailExists})

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register-customer", "",
		map[string]any{"name": "Alice"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/auth/register-customer", "",
		map[string]any{"name": "Alice", "email": "alice@bank.io", "password": "secret"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email: status = %d, want 409", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(&stubService{})

	rec := doJSON(t, router, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

// Package handler содержит HTTP-обработчики API банковской системы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zeyadhelal16/bank-system/internal/middleware"
	"github.com/zeyadhelal16/bank-system/internal/model"
	"github.com/zeyadhelal16/bank-system/internal/repository"
	"github.com/zeyadhelal16/bank-system/internal/service"
	"github.com/zeyadhelal16/bank-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCustomer(ctx context.Context, name, email, password string, initialDeposit float64) (*model.Customer, error)
	RegisterEmployee(ctx context.Context, name, email, password, department string) (*model.Employee, error)
	Authenticate(ctx context.Context, email, password string, role model.Role) (*service.Profile, error)
	GetProfile(ctx context.Context, actor model.Actor) (*service.Profile, error)
	Deposit(ctx context.Context, actor model.Actor, accountID string, amount float64) (string, int64, error)
	Withdraw(ctx context.Context, actor model.Actor, accountID string, amount float64) (string, int64, error)
	Transfer(ctx context.Context, actor model.Actor, fromIdentifier, toIdentifier string, amount float64) (string, string, int64, error)
	GetBalance(ctx context.Context, actor model.Actor) (*model.Customer, error)
	GetCustomerBalance(ctx context.Context, actor model.Actor, accountID string) (*model.Customer, error)
	ListTransactions(ctx context.Context, actor model.Actor) ([]model.Transaction, error)
	ListCustomers(ctx context.Context, actor model.Actor) ([]model.Customer, error)
	ListEmployees(ctx context.Context, actor model.Actor) ([]model.Employee, error)
}

// Sessions определяет контракт хранилища сессий для входа и выхода.
type Sessions interface {
	Create(actor model.Actor) (string, error)
	Delete(token string)
}

// Handler реализует HTTP-обработчики API банковской системы.
type Handler struct {
	service        Service
	sessions       Sessions
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, sessions Sessions, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		sessions:       sessions,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type customerResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Balance   float64 `json:"balance"`
	CreatedAt string  `json:"createdAt"`
}

type employeeResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	CreatedAt  string `json:"createdAt"`
}

// Учётные данные никогда не попадают в ответы: DTO не содержат поля passwordHash.
func toCustomerResponse(c *model.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Balance:   validation.CentsToAmount(c.BalanceCents),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toEmployeeResponse(e *model.Employee) employeeResponse {
	return employeeResponse{
		ID:         e.ID,
		Name:       e.Name,
		Email:      e.Email,
		Department: e.Department,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
}

func toProfileResponse(p *service.Profile) any {
	if p.Role == model.RoleCustomer {
		return toCustomerResponse(p.Customer)
	}
	return toEmployeeResponse(p.Employee)
}

type registerCustomerRequest struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Password       string   `json:"password"`
	InitialDeposit *float64 `json:"initialDeposit"`
}

// RegisterCustomer обрабатывает регистрацию нового клиента.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req registerCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		return
	}

	if req.Name == "" || model.NormalizeEmail(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email, and password are required")
		return
	}

	deposit := 0.0
	if req.InitialDeposit != nil {
		deposit = *req.InitialDeposit
	}

	customer, err := h.service.RegisterCustomer(r.Context(), req.Name, req.Email, req.Password, deposit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "initialDeposit must be 0 or higher")
		case errors.Is(err, repository.ErrEmailExists):
			writeError(w, http.StatusConflict, "Email is already in use")
		default:
			h.logger.Error("register customer error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to create customer account")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Customer account created",
		"customer": toCustomerResponse(customer),
	})
}

type registerEmployeeRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
}

// RegisterEmployee обрабатывает регистрацию нового сотрудника.
func (h *Handler) RegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var req registerEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		return
	}

	if req.Name == "" || model.NormalizeEmail(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email, and password are required")
		return
	}

	employee, err := h.service.RegisterEmployee(r.Context(), req.Name, req.Email, req.Password, req.Department)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			writeError(w, http.StatusConflict, "Email is already in use")
			return
		}
		h.logger.Error("register employee error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create employee account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "Employee account created",
		"employee": toEmployeeResponse(employee),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Login выполняет аутентификацию принципала и выпускает сессионный токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		return
	}

	if model.NormalizeEmail(req.Email) == "" || req.Password == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "email, password, and role are required")
		return
	}

	role := model.Role(req.Role)
	if !role.IsValid() {
		writeError(w, http.StatusBadRequest, "role must be customer or employee")
		return
	}

	profile, err := h.service.Authenticate(r.Context(), req.Email, req.Password, role)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("login error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	token, err := h.sessions.Create(profile.Actor())
	if err != nil {
		h.logger.Error("create session error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"token":   token,
		"role":    string(role),
		"profile": toProfileResponse(profile),
	})
}

// Logout отзывает сессию текущего принципала.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.GetTokenFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	h.sessions.Delete(token)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// GetProfile возвращает учётную запись текущего принципала.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), actor)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCustomerNotFound):
			writeError(w, http.StatusNotFound, "Customer not found")
		case errors.Is(err, repository.ErrEmployeeNotFound):
			writeError(w, http.StatusNotFound, "Employee not found")
		default:
			h.logger.Error("get profile error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to read profile")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"profile": toProfileResponse(profile)})
}

// GetBalance возвращает баланс собственного счёта клиента.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	customer, err := h.service.GetBalance(r.Context(), actor)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoleNotPermitted):
			writeError(w, http.StatusForbidden, "Only customers have personal balances")
		case errors.Is(err, repository.ErrCustomerNotFound):
			writeError(w, http.StatusNotFound, "Customer not found")
		default:
			h.logger.Error("get balance error", zap.Error(err), zap.String("actorID", actor.ID))
			writeError(w, http.StatusInternalServerError, "Failed to read balance")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": customer.ID,
		"balance":   validation.CentsToAmount(customer.BalanceCents),
	})
}

type actorResponse struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

type transactionResponse struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Amount      float64       `json:"amount"`
	FromAccount *string       `json:"fromAccount"`
	ToAccount   *string       `json:"toAccount"`
	PerformedBy actorResponse `json:"performedBy"`
	CreatedAt   string        `json:"createdAt"`
}

func toTransactionResponse(t model.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:     t.ID,
		Type:   string(t.Type),
		Amount: validation.CentsToAmount(t.AmountCents),
		PerformedBy: actorResponse{
			Role: string(t.PerformedBy.Role),
			ID:   t.PerformedBy.ID,
		},
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
	if t.FromAccount != "" {
		resp.FromAccount = &t.FromAccount
	}
	if t.ToAccount != "" {
		resp.ToAccount = &t.ToAccount
	}
	return resp
}

// GetTransactions возвращает журнал транзакций в зоне видимости текущего принципала.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	transactions, err := h.service.ListTransactions(r.Context(), actor)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.String("actorID", actor.ID))
		writeError(w, http.StatusInternalServerError, "Failed to read transactions")
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, t := range transactions {
		resp = append(resp, toTransactionResponse(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": resp})
}

// ListCustomers возвращает всех клиентов банка. Доступно только сотрудникам.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	customers, err := h.service.ListCustomers(r.Context(), actor)
	if err != nil {
		if errors.Is(err, service.ErrRoleNotPermitted) {
			writeError(w, http.StatusForbidden, "Employee access required")
			return
		}
		h.logger.Error("list customers error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read customers")
		return
	}

	resp := make([]customerResponse, 0, len(customers))
	for i := range customers {
		resp = append(resp, toCustomerResponse(&customers[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{"customers": resp})
}

// GetCustomerBalance возвращает баланс произвольного клиента. Доступно только сотрудникам.
func (h *Handler) GetCustomerBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	customer, err := h.service.GetCustomerBalance(r.Context(), actor, chi.URLParam(r, "accountId"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoleNotPermitted):
			writeError(w, http.StatusForbidden, "Employee access required")
		case errors.Is(err, service.ErrAccountIDRequired):
			writeError(w, http.StatusBadRequest, "accountId is required")
		case errors.Is(err, repository.ErrCustomerNotFound):
			writeError(w, http.StatusNotFound, "Customer not found")
		default:
			h.logger.Error("get customer balance error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to read customer balance")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": customer.ID,
		"name":      customer.Name,
		"balance":   validation.CentsToAmount(customer.BalanceCents),
	})
}

// ListEmployees возвращает всех сотрудников банка. Доступно только сотрудникам.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	employees, err := h.service.ListEmployees(r.Context(), actor)
	if err != nil {
		if errors.Is(err, service.ErrRoleNotPermitted) {
			writeError(w, http.StatusForbidden, "Employee access required")
			return
		}
		h.logger.Error("list employees error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read employees")
		return
	}

	resp := make([]employeeResponse, 0, len(employees))
	for i := range employees {
		resp = append(resp, toEmployeeResponse(&employees[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{"employees": resp})
}

type moveMoneyRequest struct {
	Amount    float64 `json:"amount"`
	AccountID string  `json:"accountId"`
}

// Deposit зачисляет сумму на счёт: клиент — на собственный, сотрудник — на указанный.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req moveMoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	accountID, balanceCents, err := h.service.Deposit(r.Context(), actor, req.AccountID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be a positive number")
		case errors.Is(err, service.ErrAccountIDRequired):
			writeError(w, http.StatusBadRequest, "accountId is required for employee deposits")
		case errors.Is(err, service.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "Cannot deposit to another customer's account")
		case errors.Is(err, repository.ErrCustomerNotFound):
			writeError(w, http.StatusNotFound, "Target account not found")
		default:
			h.logger.Error("deposit error", zap.Error(err), zap.String("actorID", actor.ID))
			writeError(w, http.StatusInternalServerError, "Deposit failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Deposit successful",
		"accountId": accountID,
		"balance":   validation.CentsToAmount(balanceCents),
	})
}

// Withdraw списывает сумму со счёта: клиент — с собственного, сотрудник — с указанного.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req moveMoneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	accountID, balanceCents, err := h.service.Withdraw(r.Context(), actor, req.AccountID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be a positive number")
		case errors.Is(err, service.ErrAccountIDRequired):
			writeError(w, http.StatusBadRequest, "accountId is required for employee withdrawals")
		case errors.Is(err, service.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "Cannot withdraw from another customer's account")
		case errors.Is(err, repository.ErrCustomerNotFound):
			writeError(w, http.StatusNotFound, "Target account not found")
		case errors.Is(err, repository.ErrInsufficientFunds):
			writeError(w, http.StatusBadRequest, "Insufficient funds")
		default:
			h.logger.Error("withdraw error", zap.Error(err), zap.String("actorID", actor.ID))
			writeError(w, http.StatusInternalServerError, "Withdrawal failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Withdrawal successful",
		"accountId": accountID,
		"balance":   validation.CentsToAmount(balanceCents),
	})
}

type transferRequest struct {
	FromAccountID string  `json:"fromAccountId"`
	ToAccountID   string  `json:"toAccountId"`
	Amount        float64 `json:"amount"`
}

// Transfer переводит сумму между счетами. Стороны задаются идентификатором счёта
// либо email; клиент переводит только с собственного счёта.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	fromID, toID, balanceCents, err := h.service.Transfer(r.Context(), actor, req.FromAccountID, req.ToAccountID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be a positive number")
		case errors.Is(err, service.ErrAccountIDRequired):
			writeError(w, http.StatusBadRequest, "fromAccountId and toAccountId are required")
		case errors.Is(err, service.ErrSameAccount):
			writeError(w, http.StatusBadRequest, "Cannot transfer to the same account")
		case errors.Is(err, service.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "Cannot transfer from another customer's account")
		case errors.Is(err, repository.ErrSenderNotFound),
			errors.Is(err, repository.ErrReceiverNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, repository.ErrInsufficientFunds):
			writeError(w, http.StatusBadRequest, "Insufficient funds")
		default:
			h.logger.Error("transfer error", zap.Error(err), zap.String("actorID", actor.ID))
			writeError(w, http.StatusInternalServerError, "Transfer failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Transfer successful",
		"fromAccount":   fromID,
		"toAccount":     toID,
		"senderBalance": validation.CentsToAmount(balanceCents),
	})
}

// Health сообщает о готовности сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package service реализует бизнес-логику банковской системы: валидацию сумм,
// разграничение доступа по ролям и координацию операций со счетами.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeyadhelal16/bank-system/internal/model"
	"github.com/zeyadhelal16/bank-system/internal/repository"
	"github.com/zeyadhelal16/bank-system/internal/validation"
)

// ErrInvalidAmount возвращается, если сумма операции не является конечным положительным числом.
var (
	ErrInvalidAmount = errors.New("amount must be a positive number")
	// ErrSameAccount возвращается при попытке перевода на тот же счёт.
	ErrSameAccount = errors.New("cannot transfer to the same account")
	// ErrRoleNotPermitted возвращается, если операция недоступна роли принципала.
	ErrRoleNotPermitted = errors.New("operation is not permitted for this role")
	// ErrUnauthorized возвращается, если клиент пытается оперировать чужим счётом.
	ErrUnauthorized = errors.New("account is not accessible for this actor")
	// ErrAccountIDRequired возвращается, если сотрудник не указал целевой счёт.
	ErrAccountIDRequired = errors.New("account identifier is required")
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCustomer(ctx context.Context, c model.Customer, initialTx *model.Transaction) error
	CreateEmployee(ctx context.Context, e model.Employee) error
	GetCustomerByID(ctx context.Context, id string) (*model.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*model.Customer, error)
	GetEmployeeByID(ctx context.Context, id string) (*model.Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (*model.Employee, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	ListEmployees(ctx context.Context) ([]model.Employee, error)
	ListAllTransactions(ctx context.Context) ([]model.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error)
	Deposit(ctx context.Context, accountID string, amountCents int64, actor model.Actor) (int64, error)
	Withdraw(ctx context.Context, accountID string, amountCents int64, actor model.Actor) (int64, error)
	Transfer(ctx context.Context, fromID, toID string, amountCents int64, actor model.Actor) (int64, error)
}

// Service содержит бизнес-логику банковской системы.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// RegisterCustomer регистрирует нового клиента. Ненулевой начальный взнос
// зачисляется на счёт и фиксируется в журнале как депозит от имени клиента.
func (s *Service) RegisterCustomer(ctx context.Context, name, email, password string, initialDeposit float64) (*model.Customer, error) {
	if initialDeposit != 0 && !validation.IsValidAmount(initialDeposit) {
		return nil, ErrInvalidAmount
	}

	c := model.Customer{
		ID:           model.NewCustomerID(),
		Name:         strings.TrimSpace(name),
		Email:        model.NormalizeEmail(email),
		PasswordHash: hashPassword(password),
		BalanceCents: validation.ToCents(initialDeposit),
		CreatedAt:    time.Now().UTC(),
	}

	var initialTx *model.Transaction
	if c.BalanceCents > 0 {
		t := model.NewTransaction(model.TransactionDeposit, c.BalanceCents, "", c.ID,
			model.Actor{Role: model.RoleCustomer, ID: c.ID})
		initialTx = &t
	}

	if err := s.repo.CreateCustomer(ctx, c, initialTx); err != nil {
		return nil, err
	}

	return &c, nil
}

// RegisterEmployee регистрирует нового сотрудника. Пустой отдел заменяется
// значением по умолчанию.
func (s *Service) RegisterEmployee(ctx context.Context, name, email, password, department string) (*model.Employee, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		department = model.DefaultDepartment
	}

	e := model.Employee{
		ID:           model.NewEmployeeID(),
		Name:         strings.TrimSpace(name),
		Email:        model.NormalizeEmail(email),
		Department:   department,
		PasswordHash: hashPassword(password),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateEmployee(ctx, e); err != nil {
		return nil, err
	}

	return &e, nil
}

// Profile объединяет учётную запись принципала любой из двух ролей.
// Заполнено ровно одно из полей Customer/Employee в соответствии с ролью.
type Profile struct {
	Role     model.Role
	Customer *model.Customer
	Employee *model.Employee
}

// Actor возвращает принципала, которому принадлежит профиль.
func (p *Profile) Actor() model.Actor {
	if p.Role == model.RoleCustomer {
		return model.Actor{Role: model.RoleCustomer, ID: p.Customer.ID}
	}
	return model.Actor{Role: model.RoleEmployee, ID: p.Employee.ID}
}

// Authenticate проверяет пару email/пароль в пуле указанной роли.
// Любое несовпадение сворачивается в ErrInvalidCredentials, чтобы не раскрывать,
// существует ли учётная запись.
func (s *Service) Authenticate(ctx context.Context, email, password string, role model.Role) (*Profile, error) {
	normalized := model.NormalizeEmail(email)
	hashed := hashPassword(password)

	switch role {
	case model.RoleCustomer:
		c, err := s.repo.GetCustomerByEmail(ctx, normalized)
		if err != nil {
			if errors.Is(err, repository.ErrCustomerNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		if c.PasswordHash != hashed {
			return nil, ErrInvalidCredentials
		}
		return &Profile{Role: model.RoleCustomer, Customer: c}, nil
	case model.RoleEmployee:
		e, err := s.repo.GetEmployeeByEmail(ctx, normalized)
		if err != nil {
			if errors.Is(err, repository.ErrEmployeeNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		if e.PasswordHash != hashed {
			return nil, ErrInvalidCredentials
		}
		return &Profile{Role: model.RoleEmployee, Employee: e}, nil
	default:
		return nil, ErrRoleNotPermitted
	}
}

// GetProfile возвращает учётную запись принципала по его роли.
func (s *Service) GetProfile(ctx context.Context, actor model.Actor) (*Profile, error) {
	switch actor.Role {
	case model.RoleCustomer:
		c, err := s.repo.GetCustomerByID(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return &Profile{Role: model.RoleCustomer, Customer: c}, nil
	case model.RoleEmployee:
		e, err := s.repo.GetEmployeeByID(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return &Profile{Role: model.RoleEmployee, Employee: e}, nil
	default:
		return nil, ErrRoleNotPermitted
	}
}

// resolveTarget определяет счёт, затрагиваемый депозитом или снятием.
// Клиент всегда оперирует собственным счётом: явный чужой идентификатор отклоняется.
// Сотрудник обязан указать целевой счёт явно.
func resolveTarget(actor model.Actor, accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)

	if actor.Role == model.RoleCustomer {
		if accountID != "" && accountID != actor.ID {
			return "", ErrUnauthorized
		}
		return actor.ID, nil
	}

	if accountID == "" {
		return "", ErrAccountIDRequired
	}
	return accountID, nil
}

// Deposit зачисляет сумму на счёт. Возвращает идентификатор счёта и новый баланс в центах.
func (s *Service) Deposit(ctx context.Context, actor model.Actor, accountID string, amount float64) (string, int64, error) {
	if !validation.IsValidAmount(amount) {
		return "", 0, ErrInvalidAmount
	}

	targetID, err := resolveTarget(actor, accountID)
	if err != nil {
		return "", 0, err
	}

	balance, err := s.repo.Deposit(ctx, targetID, validation.ToCents(amount), actor)
	if err != nil {
		return "", 0, err
	}

	return targetID, balance, nil
}

// Withdraw списывает сумму со счёта. Возвращает идентификатор счёта и новый баланс в центах.
func (s *Service) Withdraw(ctx context.Context, actor model.Actor, accountID string, amount float64) (string, int64, error) {
	if !validation.IsValidAmount(amount) {
		return "", 0, ErrInvalidAmount
	}

	targetID, err := resolveTarget(actor, accountID)
	if err != nil {
		return "", 0, err
	}

	balance, err := s.repo.Withdraw(ctx, targetID, validation.ToCents(amount), actor)
	if err != nil {
		return "", 0, err
	}

	return targetID, balance, nil
}

// resolveCustomerID приводит свободный идентификатор к идентификатору счёта клиента.
// Строка с символом @ трактуется как email, иначе — как точный идентификатор счёта.
func (s *Service) resolveCustomerID(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)

	if strings.Contains(identifier, "@") {
		c, err := s.repo.GetCustomerByEmail(ctx, model.NormalizeEmail(identifier))
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}

	c, err := s.repo.GetCustomerByID(ctx, identifier)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// Transfer переводит сумму между двумя счетами. Счёт получателя (и счёт отправителя
// для сотрудника) задаётся идентификатором счёта либо email. Клиент может переводить
// только с собственного счёта. Возвращает идентификаторы сторон и новый баланс
// отправителя в центах.
func (s *Service) Transfer(ctx context.Context, actor model.Actor, fromIdentifier, toIdentifier string, amount float64) (string, string, int64, error) {
	if !validation.IsValidAmount(amount) {
		return "", "", 0, ErrInvalidAmount
	}

	if strings.TrimSpace(toIdentifier) == "" {
		return "", "", 0, ErrAccountIDRequired
	}

	var fromID string
	if actor.Role == model.RoleCustomer {
		fromID = actor.ID
		if id := strings.TrimSpace(fromIdentifier); id != "" {
			resolved, err := s.resolveCustomerID(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrCustomerNotFound) {
					return "", "", 0, fmt.Errorf("%w: %s", repository.ErrSenderNotFound, id)
				}
				return "", "", 0, err
			}
			if resolved != actor.ID {
				return "", "", 0, ErrUnauthorized
			}
		}
	} else {
		if strings.TrimSpace(fromIdentifier) == "" {
			return "", "", 0, ErrAccountIDRequired
		}
		resolved, err := s.resolveCustomerID(ctx, fromIdentifier)
		if err != nil {
			if errors.Is(err, repository.ErrCustomerNotFound) {
				return "", "", 0, fmt.Errorf("%w: %s", repository.ErrSenderNotFound, strings.TrimSpace(fromIdentifier))
			}
			return "", "", 0, err
		}
		fromID = resolved
	}

	toID, err := s.resolveCustomerID(ctx, toIdentifier)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return "", "", 0, fmt.Errorf("%w: %s", repository.ErrReceiverNotFound, strings.TrimSpace(toIdentifier))
		}
		return "", "", 0, err
	}

	// Сравниваются уже разрешённые идентификаторы: счёт и его email — один счёт.
	if fromID == toID {
		return "", "", 0, ErrSameAccount
	}

	balance, err := s.repo.Transfer(ctx, fromID, toID, validation.ToCents(amount), actor)
	if err != nil {
		return "", "", 0, err
	}

	return fromID, toID, balance, nil
}

// GetBalance возвращает собственный счёт клиента. Для сотрудников операция недоступна:
// личного баланса у них нет.
func (s *Service) GetBalance(ctx context.Context, actor model.Actor) (*model.Customer, error) {
	if actor.Role != model.RoleCustomer {
		return nil, ErrRoleNotPermitted
	}
	return s.repo.GetCustomerByID(ctx, actor.ID)
}

// GetCustomerBalance возвращает счёт произвольного клиента. Доступно только сотрудникам.
func (s *Service) GetCustomerBalance(ctx context.Context, actor model.Actor, accountID string) (*model.Customer, error) {
	if actor.Role != model.RoleEmployee {
		return nil, ErrRoleNotPermitted
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrAccountIDRequired
	}
	return s.repo.GetCustomerByID(ctx, accountID)
}

// ListTransactions возвращает журнал транзакций в зоне видимости принципала:
// сотрудник видит весь журнал, клиент — только операции со своим участием.
func (s *Service) ListTransactions(ctx context.Context, actor model.Actor) ([]model.Transaction, error) {
	if actor.Role == model.RoleEmployee {
		return s.repo.ListAllTransactions(ctx)
	}
	return s.repo.ListTransactionsByAccount(ctx, actor.ID)
}

// ListCustomers возвращает всех клиентов. Доступно только сотрудникам.
func (s *Service) ListCustomers(ctx context.Context, actor model.Actor) ([]model.Customer, error) {
	if actor.Role != model.RoleEmployee {
		return nil, ErrRoleNotPermitted
	}
	return s.repo.ListCustomers(ctx)
}

// ListEmployees возвращает всех сотрудников. Доступно только сотрудникам.
func (s *Service) ListEmployees(ctx context.Context, actor model.Actor) ([]model.Employee, error) {
	if actor.Role != model.RoleEmployee {
		return nil, ErrRoleNotPermitted
	}
	return s.repo.ListEmployees(ctx)
}

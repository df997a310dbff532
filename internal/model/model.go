// Package model содержит доменные сущности банковской системы.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role определяет роль принципала в системе.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
)

// IsValid проверяет, что роль является одной из поддерживаемых.
func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleEmployee
}

// Actor описывает аутентифицированного принципала, выполняющего операцию.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// DefaultDepartment используется, если при регистрации сотрудника отдел не указан.
const DefaultDepartment = "General"

// Customer представляет клиента банка с денежным счётом.
// Баланс хранится в минимальных единицах валюты (центах).
type Customer struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	BalanceCents int64
	CreatedAt    time.Time
}

// Employee представляет сотрудника банка. Личного баланса у сотрудника нет.
type Employee struct {
	ID           string
	Name         string
	Email        string
	Department   string
	PasswordHash string
	CreatedAt    time.Time
}

// TransactionType описывает тип денежной операции.
type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionWithdraw TransactionType = "withdraw"
	TransactionTransfer TransactionType = "transfer"
)

// Transaction — неизменяемая запись об одной зафиксированной денежной операции.
// Пустые FromAccount/ToAccount означают отсутствие соответствующей стороны
// (null при сериализации).
type Transaction struct {
	ID          string
	Type        TransactionType
	AmountCents int64
	FromAccount string
	ToAccount   string
	PerformedBy Actor
	CreatedAt   time.Time
}

// NewTransaction создаёт запись об операции: генерирует идентификатор, проставляет
// текущее время и проверяет структурный инвариант полей для каждого типа операции.
// Бизнес-валидация выполняется до вызова; нарушение инварианта здесь — ошибка
// программирования, поэтому функция паникует.
func NewTransaction(txType TransactionType, amountCents int64, fromAccount, toAccount string, actor Actor) Transaction {
	if amountCents <= 0 {
		panic(fmt.Sprintf("transaction amount must be positive, got %d", amountCents))
	}

	switch txType {
	case TransactionDeposit:
		if fromAccount != "" || toAccount == "" {
			panic("deposit transaction must have only toAccount set")
		}
	case TransactionWithdraw:
		if fromAccount == "" || toAccount != "" {
			panic("withdraw transaction must have only fromAccount set")
		}
	case TransactionTransfer:
		if fromAccount == "" || toAccount == "" {
			panic("transfer transaction must have both accounts set")
		}
		if fromAccount == toAccount {
			panic("transfer transaction must have distinct accounts")
		}
	default:
		panic(fmt.Sprintf("unknown transaction type: %s", txType))
	}

	return Transaction{
		ID:          NewTransactionID(),
		Type:        txType,
		AmountCents: amountCents,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		PerformedBy: actor,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewCustomerID генерирует уникальный идентификатор клиента.
func NewCustomerID() string {
	return newID("CUS")
}

// NewEmployeeID генерирует уникальный идентификатор сотрудника.
func NewEmployeeID() string {
	return newID("EMP")
}

// NewTransactionID генерирует уникальный идентификатор транзакции.
func NewTransactionID() string {
	return newID("TXN")
}

// Идентификаторы сохраняют префиксы исходного формата данных (CUS/EMP/TXN).
func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NormalizeEmail приводит адрес электронной почты к каноническому виду.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

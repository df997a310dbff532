package model

import (
	"strings"
	"testing"
)

func TestNewTransactionShapes(t *testing.T) {
	actor := Actor{Role: RoleEmployee, ID: "EMP1"}

	deposit := NewTransaction(TransactionDeposit, 500, "", "CUS1", actor)
	if deposit.FromAccount != "" || deposit.ToAccount != "CUS1" {
		t.Errorf("deposit sides = (%q, %q), want (\"\", \"CUS1\")", deposit.FromAccount, deposit.ToAccount)
	}

	withdraw := NewTransaction(TransactionWithdraw, 500, "CUS1", "", actor)
	if withdraw.FromAccount != "CUS1" || withdraw.ToAccount != "" {
		t.Errorf("withdraw sides = (%q, %q), want (\"CUS1\", \"\")", withdraw.FromAccount, withdraw.ToAccount)
	}

	transfer := NewTransaction(TransactionTransfer, 500, "CUS1", "CUS2", actor)
	if transfer.FromAccount != "CUS1" || transfer.ToAccount != "CUS2" {
		t.Errorf("transfer sides = (%q, %q), want (\"CUS1\", \"CUS2\")", transfer.FromAccount, transfer.ToAccount)
	}

	if transfer.PerformedBy != actor {
		t.Errorf("performedBy = %+v, want %+v", transfer.PerformedBy, actor)
	}
	if !strings.HasPrefix(transfer.ID, "TXN") {
		t.Errorf("transaction ID %q must have TXN prefix", transfer.ID)
	}
	if transfer.CreatedAt.IsZero() {
		t.Error("transaction must be stamped with creation time")
	}
}

func TestNewTransactionPanicsOnInvariantViolation(t *testing.T) {
	actor := Actor{Role: RoleCustomer, ID: "CUS1"}

	tests := []struct {
		name   string
		txType TransactionType
		amount int64
		from   string
		to     string
	}{
		{name: "non-positive amount", txType: TransactionDeposit, amount: 0, from: "", to: "CUS1"},
		{name: "deposit with fromAccount", txType: TransactionDeposit, amount: 100, from: "CUS2", to: "CUS1"},
		{name: "deposit without toAccount", txType: TransactionDeposit, amount: 100, from: "", to: ""},
		{name: "withdraw with toAccount", txType: TransactionWithdraw, amount: 100, from: "CUS1", to: "CUS2"},
		{name: "withdraw without fromAccount", txType: TransactionWithdraw, amount: 100, from: "", to: ""},
		{name: "transfer missing side", txType: TransactionTransfer, amount: 100, from: "CUS1", to: ""},
		{name: "transfer to same account", txType: TransactionTransfer, amount: 100, from: "CUS1", to: "CUS1"},
		{name: "unknown type", txType: TransactionType("refund"), amount: 100, from: "CUS1", to: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic on structural invariant violation")
				}
			}()
			NewTransaction(tt.txType, tt.amount, tt.from, tt.to, actor)
		})
	}
}

func TestIDPrefixes(t *testing.T) {
	if id := NewCustomerID(); !strings.HasPrefix(id, "CUS") {
		t.Errorf("customer ID %q must have CUS prefix", id)
	}
	if id := NewEmployeeID(); !strings.HasPrefix(id, "EMP") {
		t.Errorf("employee ID %q must have EMP prefix", id)
	}
	if NewCustomerID() == NewCustomerID() {
		t.Error("generated IDs must be unique")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  User@Example.COM ", want: "user@example.com"},
		{in: "plain@bank.io", want: "plain@bank.io"},
		{in: "   ", want: ""},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoleIsValid(t *testing.T) {
	if !RoleCustomer.IsValid() || !RoleEmployee.IsValid() {
		t.Error("customer and employee roles must be valid")
	}
	if Role("admin").IsValid() {
		t.Error("unknown role must not be valid")
	}
}

// Package repository содержит реализацию хранилища счетов и журнала транзакций в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/zeyadhelal16/bank-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrEmailExists возвращается при попытке зарегистрировать уже занятый email.
var (
	ErrEmailExists = errors.New("email is already in use")
	// ErrCustomerNotFound возвращается, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrEmployeeNotFound возвращается, если сотрудник не найден.
	ErrEmployeeNotFound = errors.New("employee not found")
	// ErrSenderNotFound возвращается, если счёт отправителя перевода не найден.
	ErrSenderNotFound = errors.New("sender account not found")
	// ErrReceiverNotFound возвращается, если счёт получателя перевода не найден.
	ErrReceiverNotFound = errors.New("receiver account not found")
	// ErrInsufficientFunds возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
// Все денежные мутации выполняются в транзакции с блокировкой затрагиваемых
// строк клиентов, поэтому параллельные операции не теряют обновления.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateCustomer сохраняет нового клиента. Уникальность email проверяется в обеих
// популяциях: индекс закрывает таблицу клиентов, явная проверка — таблицу сотрудников.
// Если передана запись о начальном взносе, она фиксируется в той же транзакции.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c model.Customer, initialTx *model.Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taken bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM employees WHERE email = $1)`,
		c.Email,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check employee email: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrEmailExists, c.Email)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO customers (id, name, email, password_hash, balance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Email, c.PasswordHash, c.BalanceCents, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrEmailExists, c.Email)
		}
		return fmt.Errorf("insert customer: %w", err)
	}

	if initialTx != nil {
		if err := insertTransaction(ctx, tx, *initialTx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// CreateEmployee сохраняет нового сотрудника с той же дисциплиной уникальности email.
func (r *PostgresRepository) CreateEmployee(ctx context.Context, e model.Employee) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taken bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE email = $1)`,
		e.Email,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check customer email: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrEmailExists, e.Email)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO employees (id, name, email, department, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Name, e.Email, e.Department, e.PasswordHash, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrEmailExists, e.Email)
		}
		return fmt.Errorf("insert employee: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const customerColumns = `id, name, email, password_hash, balance, created_at`

func scanCustomer(row pgx.Row) (*model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.BalanceCents, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return &c, nil
}

// GetCustomerByID возвращает клиента по идентификатору счёта.
func (r *PostgresRepository) GetCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// GetCustomerByEmail возвращает клиента по нормализованному email.
func (r *PostgresRepository) GetCustomerByEmail(ctx context.Context, email string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1`, email)
	return scanCustomer(row)
}

const employeeColumns = `id, name, email, department, password_hash, created_at`

func scanEmployee(row pgx.Row) (*model.Employee, error) {
	var e model.Employee
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Department, &e.PasswordHash, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("scan employee: %w", err)
	}
	return &e, nil
}

// GetEmployeeByID возвращает сотрудника по идентификатору.
func (r *PostgresRepository) GetEmployeeByID(ctx context.Context, id string) (*model.Employee, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	return scanEmployee(row)
}

// GetEmployeeByEmail возвращает сотрудника по нормализованному email.
func (r *PostgresRepository) GetEmployeeByEmail(ctx context.Context, email string) (*model.Employee, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE email = $1`, email)
	return scanEmployee(row)
}

// ListCustomers возвращает всех клиентов в порядке создания счетов.
func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	var res []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.BalanceCents, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListEmployees возвращает всех сотрудников в порядке создания учётных записей.
func (r *PostgresRepository) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+employeeColumns+` FROM employees ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select employees: %w", err)
	}
	defer rows.Close()

	var res []model.Employee
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Department, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const transactionColumns = `id, type, amount, from_account, to_account, performed_by_role, performed_by_id, created_at`

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t        model.Transaction
			from, to *string
		)
		err := rows.Scan(&t.ID, &t.Type, &t.AmountCents, &from, &to,
			&t.PerformedBy.Role, &t.PerformedBy.ID, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if from != nil {
			t.FromAccount = *from
		}
		if to != nil {
			t.ToAccount = *to
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListAllTransactions возвращает полный журнал транзакций, новые записи первыми.
// Вторичная сортировка по id даёт детерминированный порядок при равных метках времени.
func (r *PostgresRepository) ListAllTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return scanTransactions(rows)
}

// ListTransactionsByAccount возвращает транзакции, в которых счёт
// участвует как отправитель или получатель, новые записи первыми.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE from_account = $1 OR to_account = $1
		 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return scanTransactions(rows)
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t model.Transaction) error {
	var from, to *string
	if t.FromAccount != "" {
		from = &t.FromAccount
	}
	if t.ToAccount != "" {
		to = &t.ToAccount
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, type, amount, from_account, to_account, performed_by_role, performed_by_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, string(t.Type), t.AmountCents, from, to,
		string(t.PerformedBy.Role), t.PerformedBy.ID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// lockBalance блокирует строку клиента до конца транзакции и возвращает её баланс.
func lockBalance(ctx context.Context, tx pgx.Tx, accountID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT balance FROM customers WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCustomerNotFound
		}
		return 0, fmt.Errorf("lock customer row: %w", err)
	}
	return balance, nil
}

// Deposit атомарно зачисляет сумму на счёт клиента и фиксирует запись журнала.
// Возвращает новый баланс счёта в центах.
func (r *PostgresRepository) Deposit(ctx context.Context, accountID string, amountCents int64, actor model.Actor) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}

	newBalance := balance + amountCents
	_, err = tx.Exec(ctx,
		`UPDATE customers SET balance = $2 WHERE id = $1`,
		accountID, newBalance,
	)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	record := model.NewTransaction(model.TransactionDeposit, amountCents, "", accountID, actor)
	if err := insertTransaction(ctx, tx, record); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return newBalance, nil
}

// Withdraw атомарно списывает сумму со счёта клиента и фиксирует запись журнала.
// Списание, превышающее текущий баланс, отклоняется с ErrInsufficientFunds.
func (r *PostgresRepository) Withdraw(ctx context.Context, accountID string, amountCents int64, actor model.Actor) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}

	if balance < amountCents {
		return 0, ErrInsufficientFunds
	}

	newBalance := balance - amountCents
	_, err = tx.Exec(ctx,
		`UPDATE customers SET balance = $2 WHERE id = $1`,
		accountID, newBalance,
	)
	if err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	record := model.NewTransaction(model.TransactionWithdraw, amountCents, accountID, "", actor)
	if err := insertTransaction(ctx, tx, record); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return newBalance, nil
}

// Transfer атомарно переводит сумму между двумя счетами и фиксирует одну запись
// журнала. Дебет и кредит равны, поэтому сумма всех балансов не меняется.
// Строки обоих клиентов блокируются в лексикографическом порядке идентификаторов:
// два встречных перевода между одной парой счетов не могут взаимно заблокироваться.
// Возвращает новый баланс отправителя в центах.
func (r *PostgresRepository) Transfer(ctx context.Context, fromID, toID string, amountCents int64, actor model.Actor) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}

	balances := make(map[string]int64, 2)
	for _, id := range []string{first, second} {
		balance, err := lockBalance(ctx, tx, id)
		if err != nil {
			if errors.Is(err, ErrCustomerNotFound) {
				if id == fromID {
					return 0, fmt.Errorf("%w: %s", ErrSenderNotFound, id)
				}
				return 0, fmt.Errorf("%w: %s", ErrReceiverNotFound, id)
			}
			return 0, err
		}
		balances[id] = balance
	}

	if balances[fromID] < amountCents {
		return 0, ErrInsufficientFunds
	}

	newSenderBalance := balances[fromID] - amountCents
	_, err = tx.Exec(ctx,
		`UPDATE customers SET balance = $2 WHERE id = $1`,
		fromID, newSenderBalance,
	)
	if err != nil {
		return 0, fmt.Errorf("debit sender: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE customers SET balance = $2 WHERE id = $1`,
		toID, balances[toID]+amountCents,
	)
	if err != nil {
		return 0, fmt.Errorf("credit receiver: %w", err)
	}

	record := model.NewTransaction(model.TransactionTransfer, amountCents, fromID, toID, actor)
	if err := insertTransaction(ctx, tx, record); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return newSenderBalance, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/yurimoinhos/flowpay/internal/model"
)

type CustomersRepository interface {
	CustomerExists(ctx context.Context, email string) (bool, error)
	// FindCustomerByEmail returns nil, nil when no customer has that email.
	FindCustomerByEmail(ctx context.Context, email string) (*model.Customer, error)
	// SaveCustomer inserts c, or returns the existing row when the email is taken.
	SaveCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
}

type CustomersRepositoryImpl struct {
	db *sqlx.DB
}

func NewCustomersRepository(db *sqlx.DB) *CustomersRepositoryImpl {
	return &CustomersRepositoryImpl{db: db}
}

var _ CustomersRepository = (*CustomersRepositoryImpl)(nil)

func (r *CustomersRepositoryImpl) CustomerExists(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM customers WHERE email = ?)`, email)
	return ok, err
}

func (r *CustomersRepositoryImpl) FindCustomerByEmail(ctx context.Context, email string) (*model.Customer, error) {
	var c model.Customer
	err := r.db.GetContext(ctx, &c, `
		SELECT id, name, email, created_at
		  FROM customers
		 WHERE email = ? LIMIT 1
	`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCustomer relies on LAST_INSERT_ID(id) so a concurrent insert of the same
// email resolves to the row that won.
func (r *CustomersRepositoryImpl) SaveCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	const q = `
		INSERT INTO customers (name, email, created_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)
	`
	res, err := r.db.ExecContext(ctx, q, c.Name, c.Email, c.CreatedAt)
	if err != nil {
		return model.Customer{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Customer{}, err
	}

	var out model.Customer
	if err := r.db.GetContext(ctx, &out, `SELECT id, name, email, created_at FROM customers WHERE id = ?`, id); err != nil {
		return model.Customer{}, err
	}
	return out, nil
}

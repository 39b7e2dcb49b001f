package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ItemInput is a catalog reference used by the full order path.
type ItemInput struct {
	PackageID string `json:"package_id"`
	Qty       int    `json:"qty"`
}

type ListFilter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}

// Repository is the only persistence the lifecycle service talks to.
type Repository interface {
	InsertPending(ctx context.Context, o *Order) error
	CreateFromCatalog(ctx context.Context, externalID, userID string, items []ItemInput, customer Customer) (o *Order, existed bool, err error)
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	SetPayment(ctx context.Context, id string, pm *PaymentMeta) error
	// CompareAndSetStatus updates only if the stored status is still from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, pm *PaymentMeta, paidAt *time.Time) (bool, error)
	ListPackages(ctx context.Context) ([]Package, error)
}

type PgRepo struct{ DB *pgxpool.Pool }

var _ Repository = (*PgRepo)(nil)

const orderColumns = `id, user_id, total, status, metadata, created_at, updated_at, paid_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o    Order
		meta []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &meta, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &o.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func (r *PgRepo) InsertPending(ctx context.Context, o *Order) error {
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders(id, user_id, total, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, o.ID, o.UserID, o.Total, StatusPending, meta, o.CreatedAt)
	return err
}

// CreateFromCatalog: idempotent via external_id, prices taken from packages (never from the client).
func (r *PgRepo) CreateFromCatalog(ctx context.Context, externalID, userID string, items []ItemInput, customer Customer) (*Order, bool, error) {
	if externalID != "" {
		var id string
		err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE external_id=$1`, externalID).Scan(&id)
		if err == nil {
			o, err := r.Get(ctx, id)
			return o, true, err
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.PackageID)
	}
	rows, err := tx.Query(ctx, `
		SELECT id, product_name, name, description, price
		FROM packages WHERE id = ANY($1) AND active`, ids)
	if err != nil {
		return nil, false, err
	}
	catalog := map[string]Package{}
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.ProductName, &p.Name, &p.Description, &p.Price); err != nil {
			rows.Close()
			return nil, false, err
		}
		catalog[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	o := &Order{
		ID:       uuid.NewString(),
		UserID:   userID,
		Status:   StatusPending,
		Metadata: Metadata{Customer: customer},
	}
	for _, it := range items {
		p, ok := catalog[it.PackageID]
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrPackageNotFound, it.PackageID)
		}
		if it.Qty <= 0 {
			return nil, false, fmt.Errorf("%w: qty for %s", ErrInvalidItem, it.PackageID)
		}
		li := LineItem{
			PackageID:   p.ID,
			ProductName: p.ProductName,
			PackageName: p.Name,
			Description: p.Description,
			UnitPrice:   p.Price,
			Quantity:    it.Qty,
		}
		o.Items = append(o.Items, li)
		o.Total += li.Subtotal()
	}

	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return nil, false, err
	}
	var ext *string
	if externalID != "" {
		ext = &externalID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, user_id, total, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, o.ID, ext, userID, o.Total, StatusPending, meta).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, false, err
	}

	for _, li := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, package_id, product_name, package_name, description, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, li.PackageID, li.ProductName, li.PackageName, li.Description, li.UnitPrice, li.Quantity,
		)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return o, false, nil
}

func (r *PgRepo) Get(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT package_id, product_name, package_name, description, unit_price, quantity
		FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.PackageID, &li.ProductName, &li.PackageName, &li.Description, &li.UnitPrice, &li.Quantity); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, li)
	}
	return o, rows.Err()
}

func (r *PgRepo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PgRepo) SetPayment(ctx context.Context, id string, pm *PaymentMeta) error {
	b, err := json.Marshal(pm)
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET metadata = jsonb_set(metadata, '{payment}', $2::jsonb), updated_at = NOW()
		WHERE id=$1 AND status='pending'`, id, b)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var st Status
	if err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&st); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return err
	}
	return ErrInvalidTransition
}

func (r *PgRepo) CompareAndSetStatus(ctx context.Context, id string, from, to Status, pm *PaymentMeta, paidAt *time.Time) (bool, error) {
	var pmJSON []byte
	if pm != nil {
		b, err := json.Marshal(pm)
		if err != nil {
			return false, err
		}
		pmJSON = b
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status = $3,
		    updated_at = NOW(),
		    paid_at = COALESCE($4, paid_at),
		    metadata = CASE WHEN $5::jsonb IS NULL THEN metadata ELSE jsonb_set(metadata, '{payment}', $5::jsonb) END
		WHERE id = $1 AND status = $2`,
		id, from, to, paidAt, pmJSON,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *PgRepo) ListPackages(ctx context.Context) ([]Package, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, product_name, name, description, price, duration_days, active, created_at
                                FROM packages WHERE active ORDER BY product_name, price`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.ProductName, &p.Name, &p.Description, &p.Price, &p.DurationDays, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

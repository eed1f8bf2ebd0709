package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"medorders/internal/domain"
	"medorders/internal/port"
)

func (r *entityRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	rows, err := sqlx.NamedQueryContext(ctx, r.q, `
		INSERT INTO orders (patient_id, prescriber_id, item_name, item_quantity,
		                    order_cost_raw, order_cost_to_insurer, reason_prescribed)
		VALUES (:patient_id, :prescriber_id, :item_name, :item_quantity,
		        :order_cost_raw, :order_cost_to_insurer, :reason_prescribed)
		RETURNING id, created_at`, o)
	if err != nil {
		return fmt.Errorf("entityRepo.InsertOrder: %w", err)
	}
	if err := scanReturning("entityRepo.InsertOrder", rows, &o.ID, &o.CreatedAt); err != nil {
		return err
	}

	for _, od := range o.Devices {
		_, err := r.q.ExecContext(ctx,
			"INSERT INTO order_devices (order_id, device_id, quantity) VALUES ($1, $2, $3)",
			o.ID, od.DeviceID, od.Quantity)
		if err != nil {
			return fmt.Errorf("entityRepo.InsertOrder devices: %w", err)
		}
	}
	return nil
}

// ListOrdersForPair returns orders for the patient/prescriber pair, newest
// first. A zero Since means no lower bound.
func (r *entityRepo) ListOrdersForPair(ctx context.Context, q port.OrderHistoryQuery) ([]domain.Order, error) {
	var since any
	if !q.Since.IsZero() {
		since = q.Since
	}
	var orders []domain.Order
	err := sqlx.SelectContext(ctx, r.q, &orders, `
		SELECT * FROM orders
		WHERE patient_id = $1
		  AND prescriber_id = $2
		  AND ($3::timestamptz IS NULL OR created_at >= $3::timestamptz)
		ORDER BY created_at DESC, id DESC`,
		q.PatientID, q.PrescriberID, since)
	if err != nil {
		return nil, fmt.Errorf("entityRepo.ListOrdersForPair: %w", err)
	}
	return orders, nil
}

type orderDeviceRow struct {
	OrderID  int64 `db:"order_id"`
	Quantity int   `db:"quantity"`
	domain.Device
}

// loadDevices attaches order_devices rows, with their devices, to orders.
func (r *entityRepo) loadDevices(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Devices = []domain.OrderDevice{}
	}

	query, args, err := sqlx.In(`
		SELECT od.order_id, od.quantity, d.*
		FROM order_devices od
		JOIN devices d ON d.id = od.device_id
		WHERE od.order_id IN (?)
		ORDER BY od.order_id, d.id`, ids)
	if err != nil {
		return fmt.Errorf("entityRepo.loadDevices: %w", err)
	}
	var rows []orderDeviceRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return fmt.Errorf("entityRepo.loadDevices: %w", err)
	}
	for _, row := range rows {
		dev := row.Device
		i := index[row.OrderID]
		orders[i].Devices = append(orders[i].Devices, domain.OrderDevice{
			DeviceID: dev.ID,
			Quantity: row.Quantity,
			Device:   &dev,
		})
	}
	return nil
}

func (r *entityRepo) getOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var o domain.Order
	err := sqlx.GetContext(ctx, r.q, &o, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("entityRepo.GetOrder: %w", err)
	}
	orders := []domain.Order{o}
	if err := r.loadDevices(ctx, orders); err != nil {
		return nil, err
	}
	o = orders[0]

	if o.Patient, err = r.GetPatient(ctx, o.PatientID); err != nil {
		return nil, fmt.Errorf("entityRepo.GetOrder patient: %w", err)
	}
	if o.Prescriber, err = r.GetPrescriber(ctx, o.PrescriberID); err != nil {
		return nil, fmt.Errorf("entityRepo.GetOrder prescriber: %w", err)
	}
	return &o, nil
}

func (r *entityRepo) listOrders(ctx context.Context, offset, limit int) ([]domain.Order, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT COUNT(*) FROM orders"); err != nil {
		return nil, 0, fmt.Errorf("entityRepo.ListOrders count: %w", err)
	}

	var orders []domain.Order
	err := sqlx.SelectContext(ctx, r.q, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("entityRepo.ListOrders: %w", err)
	}
	if err := r.loadDevices(ctx, orders); err != nil {
		return nil, 0, err
	}
	if err := r.loadParties(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// loadParties attaches the patient and prescriber rows to orders.
func (r *entityRepo) loadParties(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	patientIDs := make([]int64, 0, len(orders))
	prescriberIDs := make([]int64, 0, len(orders))
	for i := range orders {
		patientIDs = append(patientIDs, orders[i].PatientID)
		prescriberIDs = append(prescriberIDs, orders[i].PrescriberID)
	}

	var patients []domain.Patient
	if err := r.selectIn(ctx, &patients, "SELECT * FROM patients WHERE id IN (?)", patientIDs); err != nil {
		return fmt.Errorf("entityRepo.loadParties patients: %w", err)
	}
	var prescribers []domain.Prescriber
	if err := r.selectIn(ctx, &prescribers, "SELECT * FROM prescribers WHERE id IN (?)", prescriberIDs); err != nil {
		return fmt.Errorf("entityRepo.loadParties prescribers: %w", err)
	}

	byPatient := make(map[int64]*domain.Patient, len(patients))
	for i := range patients {
		byPatient[patients[i].ID] = &patients[i]
	}
	byPrescriber := make(map[int64]*domain.Prescriber, len(prescribers))
	for i := range prescribers {
		byPrescriber[prescribers[i].ID] = &prescribers[i]
	}
	for i := range orders {
		orders[i].Patient = byPatient[orders[i].PatientID]
		orders[i].Prescriber = byPrescriber[orders[i].PrescriberID]
	}
	return nil
}

func (r *entityRepo) selectIn(ctx context.Context, dest any, query string, ids []int64) error {
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, r.q, dest, r.q.Rebind(q), args...)
}

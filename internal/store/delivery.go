package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QueueDelivery records a message that is about to be handed to the transport.
func (db *DB) QueueDelivery(ctx context.Context, d Delivery) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO deliveries (id, recipient, kind, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)`,
		d.ID, d.Recipient, string(d.Kind), d.Body, now, now)
	if err != nil {
		return fmt.Errorf("queue delivery %s: %w", d.ID, err)
	}
	return nil
}

// MarkDeliverySent updates a delivery to 'sent'.
func (db *DB) MarkDeliverySent(ctx context.Context, id string) error {
	return db.setDeliveryStatus(ctx, id, DeliverySent, "")
}

// MarkDeliveryFailed updates a delivery to 'failed' with the transport error.
func (db *DB) MarkDeliveryFailed(ctx context.Context, id, errMsg string) error {
	return db.setDeliveryStatus(ctx, id, DeliveryFailed, errMsg)
}

func (db *DB) setDeliveryStatus(ctx context.Context, id string, status DeliveryStatus, errMsg string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("mark delivery %s %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark delivery %s %s: %w", id, status, sql.ErrNoRows)
	}
	return nil
}

// GetDelivery returns the delivery with the given id, or nil if none exists.
func (db *DB) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, recipient, kind, body, status, error_message, created_at, updated_at
		FROM deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// RecentDeliveries returns up to limit deliveries, newest first.
func (db *DB) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, recipient, kind, body, status, error_message, created_at, updated_at
		FROM deliveries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDeliveries returns the number of deliveries in each status.
func (db *DB) CountDeliveries(ctx context.Context) (map[DeliveryStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[DeliveryStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[DeliveryStatus(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDelivery(s scanner) (Delivery, error) {
	var d Delivery
	var kind, status string
	var created, updated int64
	if err := s.Scan(&d.ID, &d.Recipient, &kind, &d.Body, &status, &d.ErrorMessage, &created, &updated); err != nil {
		return Delivery{}, err
	}
	d.Kind = DeliveryKind(kind)
	d.Status = DeliveryStatus(status)
	d.CreatedAt = time.UnixMilli(created)
	d.UpdatedAt = time.UnixMilli(updated)
	return d, nil
}

package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mojochat/internal/models"
)

// CreateReservation stores a new unpaid reservation for userID.
func (s *Service) CreateReservation(ctx context.Context, userID string, details json.RawMessage) (*models.Reservation, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	if !json.Valid(details) {
		return nil, fmt.Errorf("%w: details must be valid JSON", ErrInvalidInput)
	}
	r := &models.Reservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now(),
		Details:   details,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reservations (id, user_id, created_at, details, has_completed_payment) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.CreatedAt, string(r.Details), false,
	)
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	return r, nil
}

// GetReservation returns a reservation owned by userID.
func (s *Service) GetReservation(ctx context.Context, userID, id string) (*models.Reservation, error) {
	var (
		r       models.Reservation
		details []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, details, has_completed_payment FROM reservations WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &r.CreatedAt, &details, &r.HasCompletedPayment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if r.UserID != userID {
		return nil, ErrForbidden
	}
	r.Details = json.RawMessage(details)
	return &r, nil
}

// MarkReservationPaid flips the payment flag. The flag only moves from false
// to true; a second call yields ErrAlreadyPaid.
func (s *Service) MarkReservationPaid(ctx context.Context, userID, id string) (*models.Reservation, error) {
	r, err := s.GetReservation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if r.HasCompletedPayment {
		return nil, ErrAlreadyPaid
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE reservations SET has_completed_payment = ? WHERE id = ? AND has_completed_payment = ?`,
		true, id, false,
	)
	if err != nil {
		return nil, fmt.Errorf("update reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reservation rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrAlreadyPaid
	}
	r.HasCompletedPayment = true
	return r, nil
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quentinzango/evenement/internal/models"
)

var ErrNotFound = errors.New("not found")

type ProfileRepository struct {
	db *DB
}

func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert creates or updates the profile keyed by deviceID. The conflict
// target is device_id: the row ID is stable across re-registrations while
// display_name and avatar are last-write-wins.
func (r *ProfileRepository) Upsert(deviceID, displayName string, avatar *string) (*models.Profile, error) {
	id, err := GenerateID("prf")
	if err != nil {
		return nil, fmt.Errorf("generating profile ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO profiles (id, device_id, display_name, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			updated_at = excluded.updated_at`,
		id, deviceID, displayName, avatar, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting profile: %w", err)
	}

	return r.FindByDeviceID(deviceID)
}

func (r *ProfileRepository) FindByID(id string) (*models.Profile, error) {
	return r.findOne(`SELECT id, device_id, display_name, avatar, created_at, updated_at FROM profiles WHERE id = ?`, id)
}

func (r *ProfileRepository) FindByDeviceID(deviceID string) (*models.Profile, error) {
	return r.findOne(`SELECT id, device_id, display_name, avatar, created_at, updated_at FROM profiles WHERE device_id = ?`, deviceID)
}

// Delete removes a profile. The client never calls this; it exists for
// administrative cleanup and for exercising the relay's stale-token path.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *ProfileRepository) findOne(query string, args ...any) (*models.Profile, error) {
	var p models.Profile
	var avatar sql.NullString
	var updatedAt sql.NullTime

	err := r.db.QueryRow(query, args...).Scan(
		&p.ID,
		&p.DeviceID,
		&p.DisplayName,
		&avatar,
		&p.CreatedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	p.Avatar = nullStringToPtr(avatar)
	p.UpdatedAt = nullTimeToPtr(updatedAt)

	return &p, nil
}

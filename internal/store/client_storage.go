package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ClientStorage is the durable key/value store each device writes to in
// place of browser local storage. Rows are scoped by device id.
type ClientStorage struct {
	db *sql.DB
}

func NewClientStorage(db *sql.DB) *ClientStorage {
	return &ClientStorage{db: db}
}

// Get returns the stored value and whether the key exists.
func (s *ClientStorage) Get(deviceID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM client_storage WHERE device_id = ? AND key = ?`,
		deviceID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get client storage: %w", err)
	}
	return value, true, nil
}

func (s *ClientStorage) Set(deviceID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO client_storage (device_id, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (device_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		deviceID, key, value,
	)
	if err != nil {
		return fmt.Errorf("set client storage: %w", err)
	}
	return nil
}

// Remove deletes the key. Removing a missing key is not an error.
func (s *ClientStorage) Remove(deviceID, key string) error {
	_, err := s.db.Exec(`DELETE FROM client_storage WHERE device_id = ? AND key = ?`, deviceID, key)
	if err != nil {
		return fmt.Errorf("remove client storage: %w", err)
	}
	return nil
}

// Touch marks every row of the device as used now, so DeleteIdle retires
// devices by last use rather than last write.
func (s *ClientStorage) Touch(deviceID string) error {
	_, err := s.db.Exec(`UPDATE client_storage SET updated_at = CURRENT_TIMESTAMP WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("touch client storage: %w", err)
	}
	return nil
}

// DeleteIdle removes rows not used within maxAge and returns how many went.
func (s *ClientStorage) DeleteIdle(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format("2006-01-02 15:04:05")
	result, err := s.db.Exec(`DELETE FROM client_storage WHERE updated_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete idle client storage: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

// Device returns a view of the storage scoped to one device.
func (s *ClientStorage) Device(deviceID string) *DeviceStorage {
	return &DeviceStorage{store: s, deviceID: deviceID}
}

// DeviceStorage exposes the local-storage style API for a single device.
type DeviceStorage struct {
	store    *ClientStorage
	deviceID string
}

func (d *DeviceStorage) GetItem(key string) (string, bool, error) {
	return d.store.Get(d.deviceID, key)
}

func (d *DeviceStorage) SetItem(key, value string) error {
	return d.store.Set(d.deviceID, key, value)
}

func (d *DeviceStorage) RemoveItem(key string) error {
	return d.store.Remove(d.deviceID, key)
}

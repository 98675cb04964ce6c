package statecache

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SyncedItem records one inventory item written by a previous run.
// The cache lets stale-item flagging work from local history instead
// of trusting remote tags alone.
type SyncedItem struct {
	DeviceSerial string `gorm:"primaryKey"`
	Kind         string `gorm:"primaryKey"`
	ItemKey      string `gorm:"primaryKey"`
	LastSeen     time.Time
}

// Cache is the local sync-state database.
type Cache struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite cache at path. An empty path
// yields a nil cache, which disables stale detection from history.
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, nil
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening state cache")
	}
	if err := db.AutoMigrate(&SyncedItem{}); err != nil {
		return nil, errors.Wrap(err, "migrating state cache")
	}
	return &Cache{db: db}, nil
}

// RecordSeen upserts the item as observed in the current run.
func (c *Cache) RecordSeen(deviceSerial, kind, itemKey string, now time.Time) error {
	if c == nil {
		return nil
	}
	item := SyncedItem{DeviceSerial: deviceSerial, Kind: kind, ItemKey: itemKey, LastSeen: now}
	return c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_serial"}, {Name: "kind"}, {Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
	}).Create(&item).Error
}

// PreviouslySeen lists items recorded for the device in earlier runs.
func (c *Cache) PreviouslySeen(deviceSerial string) ([]SyncedItem, error) {
	if c == nil {
		return nil, nil
	}
	var items []SyncedItem
	err := c.db.Where("device_serial = ?", deviceSerial).Find(&items).Error
	return items, err
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

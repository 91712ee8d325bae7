// Package sqlstore is the durable PersistenceDriver: one row per actor
// id in a SQLite database, opened via the pure-Go modernc.org/sqlite
// driver through gorm, the same driver-selection shape as the teacher's
// internal/db/db.go (minus the postgres dialect and migration framework
// neither of which this package's single table needs — see DESIGN.md).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/statedge/actorhost/driver"
)

// actorRecord is the one-table schema: an opaque blob keyed by actor id.
type actorRecord struct {
	ActorID   string `gorm:"primaryKey"`
	Data      []byte
	UpdatedAt time.Time
}

func (actorRecord) TableName() string { return "actor_records" }

// Store is a gorm-backed PersistenceDriver.
type Store struct {
	db *gorm.DB
}

// Config configures a new Store.
type Config struct {
	DSN    string
	Logger *zap.Logger
}

// Open opens (creating if necessary) a SQLite database at cfg.DSN and
// ensures the actor_records table exists.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	// SQLite allows exactly one writer at a time.
	sqlDB.SetMaxOpenConns(1)

	gormDB, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: newZapGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: gorm open: %w", err)
	}
	if err := gormDB.AutoMigrate(&actorRecord{}); err != nil {
		return nil, fmt.Errorf("sqlstore: automigrate: %w", err)
	}
	return &Store{db: gormDB}, nil
}

func (s *Store) Load(ctx context.Context, actorID string) ([]byte, error) {
	var rec actorRecord
	err := s.db.WithContext(ctx).First(&rec, "actor_id = ?", actorID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, driver.ErrNoRecord
		}
		return nil, fmt.Errorf("sqlstore: load %q: %w", actorID, err)
	}
	return rec.Data, nil
}

func (s *Store) Save(ctx context.Context, actorID string, data []byte) error {
	rec := actorRecord{ActorID: actorID, Data: data, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Save(&rec).Error
	if err != nil {
		return fmt.Errorf("sqlstore: save %q: %w", actorID, err)
	}
	return nil
}

func (s *Store) Enumerate(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&actorRecord{}).Order("actor_id").Pluck("actor_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("sqlstore: enumerate: %w", err)
	}
	return ids, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// zapGormLogger adapts *zap.Logger to gorm's logger.Interface, the same
// adaptation the teacher writes in internal/db/logger.go.
type zapGormLogger struct {
	log *zap.Logger
}

func newZapGormLogger(log *zap.Logger) gormlogger.Interface {
	return &zapGormLogger{log: log.Named("sqlstore")}
}

func (l *zapGormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *zapGormLogger) Info(_ context.Context, msg string, args ...any) {
	l.log.Info(fmt.Sprintf(msg, args...))
}

func (l *zapGormLogger) Warn(_ context.Context, msg string, args ...any) {
	l.log.Warn(fmt.Sprintf(msg, args...))
}

func (l *zapGormLogger) Error(_ context.Context, msg string, args ...any) {
	l.log.Error(fmt.Sprintf(msg, args...))
}

// Trace logs one SQL statement per call; gorm.ErrRecordNotFound is a
// normal "no persisted record yet" outcome for this store, not an error.
func (l *zapGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", time.Since(begin)),
		zap.Int64("rows", rows),
		zap.String("caller", utils.FileWithLineNum()),
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		l.log.Error("sqlstore query error", append(fields, zap.Error(err))...)
		return
	}
	l.log.Debug("sqlstore query", fields...)
}

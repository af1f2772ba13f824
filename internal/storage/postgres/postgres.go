// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/willwe-xyz/willwe-app/internal/storage"
	"github.com/willwe-xyz/willwe-app/internal/storage/models"
)

const migrationLockID = 8453

// Columns rewritten when a lifecycle id is saved again.
var mutableColumns = []string{
	"hash", "chain_id", "from_address", "operation", "status",
	"error_kind", "error_message", "gas_limit", "gas_used",
	"block_number", "explorer_url", "updated_at",
}

// gormLogger routes GORM output through zap.
type gormLogger struct {
	zapLogger     *zap.Logger
	logLevel      logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger:     zapLogger,
		logLevel:      logger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.logLevel >= logger.Error:
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold && l.logLevel >= logger.Warn:
		l.zapLogger.Warn("slow query", fields...)
	case l.logLevel >= logger.Info:
		l.zapLogger.Debug("trace", fields...)
	}
}

// Store implements storage.Storage on top of GORM.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// NewStorage connects to PostgreSQL at dsn.
func NewStorage(dsn string, zapLogger *zap.Logger) (*Store, error) {
	store, err := Open(postgres.Open(dsn), zapLogger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return store, nil
}

// Open builds a Store over any GORM dialector. Tests pass SQLite.
func Open(dialector gorm.Dialector, zapLogger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db, logger: zapLogger}, nil
}

// RunMigrations creates or alters the history table. On PostgreSQL an
// advisory lock keeps concurrent processes from migrating at once.
func (p *Store) RunMigrations(ctx context.Context) error {
	db := p.db.WithContext(ctx)

	if db.Dialector.Name() == "postgres" {
		var lockObtained bool
		if err := db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return errors.New("another migration is in progress")
		}
		defer db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)
	}

	if err := db.AutoMigrate(&models.Transaction{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	p.logger.Debug("Migrations applied", zap.String("dialect", db.Dialector.Name()))
	return nil
}

func (p *Store) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.LifecycleID == "" {
		return errors.New("transaction has no lifecycle id")
	}
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lifecycle_id"}},
			DoUpdates: clause.AssignmentColumns(mutableColumns),
		}).
		Create(tx).Error
}

func (p *Store) GetTransaction(ctx context.Context, hash string) (*models.Transaction, error) {
	var tx models.Transaction
	err := p.db.WithContext(ctx).Where("hash = ?", hash).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (p *Store) ListTransactions(ctx context.Context, from string, limit, offset int) ([]*models.Transaction, error) {
	q := p.db.WithContext(ctx).Model(&models.Transaction{})
	if from != "" {
		q = q.Where("from_address = ?", from)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var txs []*models.Transaction
	err := q.Order("created_at desc").Order("id desc").Find(&txs).Error
	return txs, err
}

func (p *Store) UpdateTransactionStatus(ctx context.Context, lifecycleID, status, errorMsg string) error {
	res := p.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("lifecycle_id = ?", lifecycleID).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMsg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (p *Store) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

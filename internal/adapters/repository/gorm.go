package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/pkg/metrics"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ScoreRecord is the persisted monthly best of one name on one board.
type ScoreRecord struct {
	ID          uint           `gorm:"primaryKey"`
	RecordID    string         `gorm:"size:36"`
	Mode        string         `gorm:"size:16;not null;uniqueIndex:idx_board_name,priority:1;index:idx_board_score,priority:1"`
	Year        int            `gorm:"not null;uniqueIndex:idx_board_name,priority:2;index:idx_board_score,priority:2"`
	Month       int            `gorm:"not null;uniqueIndex:idx_board_name,priority:3;index:idx_board_score,priority:3"`
	Name        string         `gorm:"size:64;not null;uniqueIndex:idx_board_name,priority:4"`
	Score       int64          `gorm:"not null;index:idx_board_score,priority:4,sort:desc"`
	Accuracy    float64        `gorm:"not null"`
	Metadata    map[string]any `gorm:"serializer:json"`
	SubmittedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the table name across dialects.
func (ScoreRecord) TableName() string { return "score_records" }

// GormStore implements Store on a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to driver at dsn and migrates the schema.
func OpenGorm(driver, dsn string, opts ...GormOption) (*GormStore, error) {
	o := gormOptions{maxOpenConns: 100, maxIdleConns: 10, connMaxLifetime: time.Hour}
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
		// sqlite serialises writers; a single connection also keeps
		// in-memory databases from splitting per connection.
		o.maxOpenConns, o.maxIdleConns = 1, 1
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	for _, opt := range opts {
		opt(&o)
	}

	level := gormlogger.Silent
	if o.logSQL {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(o.maxOpenConns)
	sqlDB.SetMaxIdleConns(o.maxIdleConns)
	sqlDB.SetConnMaxLifetime(o.connMaxLifetime)

	if err := db.AutoMigrate(&ScoreRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate score records: %w", err)
	}
	return &GormStore{db: db}, nil
}

// UpsertBest inserts rec or replaces the stored row when rec scores strictly
// higher, in a single statement.
func (s *GormStore) UpsertBest(ctx context.Context, rec model.Record) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	if rec.Name == "" || !rec.Mode.Valid() || rec.Score < 0 {
		return false, fmt.Errorf("%w: name %q mode %q score %d", ErrInvalidRecord, rec.Name, rec.Mode, rec.Score)
	}
	row := ScoreRecord{
		RecordID:    rec.ID,
		Mode:        string(rec.Mode),
		Year:        rec.Year,
		Month:       rec.Month,
		Name:        rec.Name,
		Score:       rec.Score,
		Accuracy:    rec.Accuracy,
		Metadata:    rec.Metadata.Map(),
		SubmittedAt: rec.SubmittedAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mode"}, {Name: "year"}, {Name: "month"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"record_id", "score", "accuracy", "metadata", "submitted_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.score > score_records.score"},
		}},
	}).Create(&row)
	if res.Error != nil {
		metrics.RecordRankingError()
		return false, fmt.Errorf("upsert %s on %s: %w", rec.Name, BoardOf(rec), res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.UpdateRankingRecords(s.Count(ctx))
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) board(ctx context.Context, b Board) *gorm.DB {
	return s.db.WithContext(ctx).Model(&ScoreRecord{}).
		Where("mode = ? AND year = ? AND month = ?", string(b.Mode), b.Year, b.Month)
}

// TopN returns the top n rows of b.
func (s *GormStore) TopN(ctx context.Context, b Board, n int) ([]model.RankedEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	var rows []ScoreRecord
	if err := s.board(ctx, b).Order("score DESC, name ASC").Limit(n).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("top %d on %s: %w", n, b, err)
	}
	out := make([]model.RankedEntry, len(rows))
	for i, r := range rows {
		rank := i + 1
		if i > 0 && r.Score == rows[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = r.entry(rank)
	}
	return out, nil
}

// Rank returns the position of name on b.
func (s *GormStore) Rank(ctx context.Context, b Board, name string) (model.RankedEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	var r ScoreRecord
	err := s.board(ctx, b).Where("name = ?", name).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.RankedEntry{}, ErrNotFound
	}
	if err != nil {
		return model.RankedEntry{}, fmt.Errorf("rank %s on %s: %w", name, b, err)
	}
	var above int64
	if err := s.board(ctx, b).Where("score > ?", r.Score).Count(&above).Error; err != nil {
		return model.RankedEntry{}, fmt.Errorf("rank %s on %s: %w", name, b, err)
	}
	return r.entry(int(above) + 1), nil
}

// Count returns the number of rows across all boards, or 0 on error.
func (s *GormStore) Count(ctx context.Context) int {
	var n int64
	if err := s.db.WithContext(ctx).Model(&ScoreRecord{}).Count(&n).Error; err != nil {
		metrics.RecordErrorByComponent("repository", "count")
		return 0
	}
	return int(n)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r ScoreRecord) entry(rank int) model.RankedEntry {
	return model.RankedEntry{
		Rank:     rank,
		Name:     r.Name,
		Score:    r.Score,
		Accuracy: r.Accuracy,
		Metadata: r.Metadata,
		At:       r.SubmittedAt,
	}
}

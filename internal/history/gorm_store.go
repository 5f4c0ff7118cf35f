package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// flowRun 是 flow_runs 表的行
type flowRun struct {
	ID          uint      `gorm:"primaryKey"`
	RunID       string    `gorm:"size:64;not null;uniqueIndex"`
	Flow        string    `gorm:"size:100;not null;index"`
	Status      string    `gorm:"size:20;not null"`
	Steps       string    `gorm:"type:text"` // StepRecord 列表的 JSON
	FinalReport string    `gorm:"size:500"`
	StartedAt   time.Time `gorm:"index"`
	EndedAt     time.Time
	DurationMs  int64
	CreatedAt   time.Time
}

func (flowRun) TableName() string {
	return "flow_runs"
}

// GormStore 基于 GORM 的运行历史存储
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建存储并迁移 flow_runs 表
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&flowRun{}); err != nil {
		return nil, fmt.Errorf("migrate flow_runs: %w", err)
	}
	return &GormStore{db: db, logger: logger.With(zap.String("component", "history_gorm"))}, nil
}

// Save 写入记录；相同 run_id 覆盖旧记录
func (s *GormStore) Save(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	row := flowRun{
		RunID:       rec.RunID,
		Flow:        rec.Flow,
		Status:      rec.Status,
		Steps:       string(steps),
		FinalReport: rec.FinalReport,
		StartedAt:   rec.StartedAt,
		EndedAt:     rec.EndedAt,
		DurationMs:  rec.Duration.Milliseconds(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"flow", "status", "steps", "final_report", "started_at", "ended_at", "duration_ms"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	s.logger.Debug("run saved", zap.String("run_id", rec.RunID), zap.String("status", rec.Status))
	return nil
}

// Get 按 run_id 读取记录
func (s *GormStore) Get(ctx context.Context, runID string) (*Record, error) {
	var row flowRun
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return row.record()
}

// List 按开始时间倒序返回最近的记录
func (s *GormStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []flowRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close 关闭底层连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *flowRun) record() (*Record, error) {
	rec := &Record{
		RunID:       r.RunID,
		Flow:        r.Flow,
		Status:      r.Status,
		FinalReport: r.FinalReport,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Duration:    time.Duration(r.DurationMs) * time.Millisecond,
	}
	if r.Steps != "" {
		if err := json.Unmarshal([]byte(r.Steps), &rec.Steps); err != nil {
			return nil, fmt.Errorf("decode steps of run %s: %w", r.RunID, err)
		}
	}
	return rec, nil
}

package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/llmgate/llm/tokenizer"
)

// Record 是一次成功计数的用量记录
type Record struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequestID   string    `gorm:"size:64;index" json:"request_id"`
	TenantID    string    `gorm:"size:128;index" json:"tenant_id,omitempty"`
	Model       string    `gorm:"size:255;index;not null" json:"model"`
	Family      string    `gorm:"size:32;not null" json:"family"`
	TokenizerID string    `gorm:"size:64" json:"tokenizer_id,omitempty"`
	Tokens      int64     `gorm:"not null" json:"tokens"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName 固定表名
func (Record) TableName() string { return "usage_records" }

// NewRecord builds a record for a count of model resolved to family.
func NewRecord(requestID, tenantID, model string, family tokenizer.ModelFamily, tokens int) *Record {
	return &Record{
		RequestID:   requestID,
		TenantID:    tenantID,
		Model:       model,
		Family:      family.Kind.String(),
		TokenizerID: family.TokenizerID,
		Tokens:      int64(tokens),
	}
}

// ModelUsage 是按模型聚合的用量
type ModelUsage struct {
	Model    string `json:"model"`
	Family   string `json:"family"`
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
}

// QueryRecorder 记录查询耗时，metrics.Collector 满足该接口
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// =============================================================================
// 📒 用量账本
// =============================================================================

// Store 基于 GORM 的用量账本
type Store struct {
	db       *gorm.DB
	logger   *zap.Logger
	recorder QueryRecorder
	now      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithQueryRecorder reports query latency.
func WithQueryRecorder(r QueryRecorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// NewStore 创建用量账本
func NewStore(db *gorm.DB, logger *zap.Logger, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("usage store: db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:     db,
		logger: logger.With(zap.String("component", "usage_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate 创建或更新 usage_records 表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrate usage records: %w", err)
	}
	return nil
}

// Record 写入一条用量记录，CreatedAt 为空时使用当前 UTC 时间
func (s *Store) Record(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("usage store: nil record")
	}
	if rec.Model == "" {
		return errors.New("usage store: model is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	defer s.observe("insert", time.Now())
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.logger.Warn("usage record insert failed",
			zap.String("model", rec.Model),
			zap.Error(err),
		)
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary 返回 since 之后（含）的按模型聚合用量，按模型名排序
func (s *Store) Summary(ctx context.Context, since time.Time) ([]ModelUsage, error) {
	defer s.observe("summary", time.Now())

	var rows []ModelUsage
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Select("model, family, COUNT(*) AS requests, COALESCE(SUM(tokens), 0) AS tokens").
		Where("created_at >= ?", since.UTC()).
		Group("model, family").
		Order("model ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize usage: %w", err)
	}
	if rows == nil {
		rows = []ModelUsage{}
	}
	return rows, nil
}

func (s *Store) observe(op string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordDBQuery("usage", op, time.Since(start))
	}
}

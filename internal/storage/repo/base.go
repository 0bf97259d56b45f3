package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Filter 筛选条件
type Filter interface {
	Apply(db *gorm.DB) *gorm.DB
}

// FilterFunc 函数形式的筛选条件
type FilterFunc func(db *gorm.DB) *gorm.DB

// Apply 实现 Filter
func (f FilterFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// Pagination 分页参数，Page 从 1 开始
type Pagination struct {
	Page  int
	Limit int
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	if p.Limit <= 0 || p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Order 排序参数
type Order struct {
	Field string
	Sort  string
}

// Orders 排序参数切片
type Orders []Order

// Option 单次操作选项
type Option func(*opConfig)

type opConfig struct {
	tx *gorm.DB
}

// WithTx 在给定事务内执行
func WithTx(tx *gorm.DB) Option {
	return func(c *opConfig) { c.tx = tx }
}

// BaseRepository 基础DAO层
type BaseRepository[T any] struct {
	Db *gorm.DB
}

// NewBaseRepository 创建基础DAO层
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{Db: db}
}

// Create 创建记录
func (r *BaseRepository[T]) Create(ctx context.Context, item *T, opts ...Option) error {
	return r.getDb(opts).WithContext(ctx).Create(item).Error
}

// CreateBatch 批量创建记录
func (r *BaseRepository[T]) CreateBatch(ctx context.Context, items []T, size int, opts ...Option) error {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = 100
	}
	return r.getDb(opts).WithContext(ctx).CreateInBatches(items, size).Error
}

// Delete 按主键或筛选条件删除，返回影响行数
func (r *BaseRepository[T]) Delete(ctx context.Context, id any, opts ...Option) (int64, error) {
	query := r.getDb(opts).WithContext(ctx)

	var result *gorm.DB
	if filter, ok := id.(Filter); ok {
		result = filter.Apply(query).Delete(new(T))
	} else {
		result = query.Delete(new(T), id)
	}
	return result.RowsAffected, result.Error
}

// FindOne 根据主键或筛选条件查询记录，不存在时返回 nil
func (r *BaseRepository[T]) FindOne(ctx context.Context, id any, opts ...Option) (*T, error) {
	item := new(T)
	query := r.getDb(opts).WithContext(ctx)

	var err error
	if filter, ok := id.(Filter); ok {
		err = filter.Apply(query).First(item).Error
	} else {
		err = query.First(item, id).Error
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindAll 查询记录列表
func (r *BaseRepository[T]) FindAll(ctx context.Context, filter Filter, pagination *Pagination, orders Orders, opts ...Option) ([]T, error) {
	list := make([]T, 0)
	query := r.getDb(opts).WithContext(ctx).Model(new(T))

	if filter != nil {
		query = filter.Apply(query)
	}
	if pagination != nil && pagination.Limit > 0 {
		query = query.Limit(pagination.Limit).Offset(pagination.Offset())
	}
	for _, order := range orders {
		query = query.Order(order.Field + " " + order.Sort)
	}

	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Count 统计记录数量
func (r *BaseRepository[T]) Count(ctx context.Context, filter Filter, opts ...Option) (int64, error) {
	var count int64
	query := r.getDb(opts).WithContext(ctx).Model(new(T))
	if filter != nil {
		query = filter.Apply(query)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Truncate 删除全部记录
func (r *BaseRepository[T]) Truncate(ctx context.Context, opts ...Option) (int64, error) {
	result := r.getDb(opts).WithContext(ctx).Where("1 = 1").Delete(new(T))
	return result.RowsAffected, result.Error
}

func (r *BaseRepository[T]) getDb(opts []Option) *gorm.DB {
	cfg := opConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tx != nil {
		return cfg.tx
	}
	return r.Db
}

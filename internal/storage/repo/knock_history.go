package repo

import (
	"context"
	"sync"
	"time"

	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/storage/model"
	"nhpbrowser/pkg/domain"

	"gorm.io/gorm"
)

// KnockHistoryOptions 异步写入参数
type KnockHistoryOptions struct {
	BatchSize     int           // 达到该条数立即刷新
	FlushInterval time.Duration // 定时刷新间隔
	MaxBufferSize int           // 缓冲区上限，超出丢弃最旧记录
}

// KnockHistoryRepo 敲门历史仓库，异步批量写入
type KnockHistoryRepo struct {
	BaseRepository[model.KnockEventRecord]
	log  logger.Logger
	opts KnockHistoryOptions

	mu      sync.Mutex
	buffer  []model.KnockEventRecord
	dropped int

	flushCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewKnockHistoryRepo 创建敲门历史仓库并启动写入协程
func NewKnockHistoryRepo(db *gorm.DB, l logger.Logger, opts KnockHistoryOptions) *KnockHistoryRepo {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.MaxBufferSize < opts.BatchSize {
		opts.MaxBufferSize = opts.BatchSize * 10
	}
	if l == nil {
		l = logger.NewNop()
	}
	r := &KnockHistoryRepo{
		BaseRepository: *NewBaseRepository[model.KnockEventRecord](db),
		log:            l.With("module", "knockHistory"),
		opts:           opts,
		buffer:         make([]model.KnockEventRecord, 0, opts.BatchSize),
		flushCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	r.wg.Add(1)
	go r.asyncWriter()
	return r
}

func (r *KnockHistoryRepo) asyncWriter() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.flush()
			return
		case <-ticker.C:
			r.flush()
		case <-r.flushCh:
			r.flush()
		}
	}
}

func (r *KnockHistoryRepo) flush() {
	r.mu.Lock()
	if len(r.buffer) == 0 {
		r.mu.Unlock()
		return
	}
	toWrite := r.buffer
	r.buffer = make([]model.KnockEventRecord, 0, r.opts.BatchSize)
	dropped := r.dropped
	r.dropped = 0
	r.mu.Unlock()

	if dropped > 0 {
		r.log.Warn("敲门历史缓冲区已满，丢弃旧记录", "dropped", dropped)
	}
	if err := r.CreateBatch(context.Background(), toWrite, 100); err != nil {
		r.log.Err(err, "写入敲门历史失败", "count", len(toWrite))
	}
}

// Record 记录一次敲门结果，不阻塞调用方
func (r *KnockHistoryRepo) Record(ev domain.KnockEvent) {
	ts := ev.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	rec := model.KnockEventRecord{
		TabID:        int64(ev.TabID),
		Host:         ev.Host,
		ResolvedHost: ev.ResolvedHost,
		URL:          ev.URL,
		Success:      ev.Success,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
		Timestamp:    ts,
		CreatedAt:    time.Now(),
	}

	r.mu.Lock()
	if len(r.buffer) >= r.opts.MaxBufferSize {
		r.buffer = r.buffer[1:]
		r.dropped++
	}
	r.buffer = append(r.buffer, rec)
	needFlush := len(r.buffer) >= r.opts.BatchSize
	r.mu.Unlock()

	if needFlush {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// Flush 请求立即刷新，返回前不保证写入完成
func (r *KnockHistoryRepo) Flush() {
	select {
	case r.flushCh <- struct{}{}:
	default:
	}
}

// Stop 停止写入协程并刷新剩余记录
func (r *KnockHistoryRepo) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

// KnockQuery 历史查询条件
type KnockQuery struct {
	Host      string
	Success   *bool
	TabID     int64
	StartTime int64
	EndTime   int64
	Offset    int
	Limit     int
}

// Query 按时间倒序查询敲门历史
func (r *KnockHistoryRepo) Query(ctx context.Context, q KnockQuery) ([]model.KnockEventRecord, int64, error) {
	filter := FilterFunc(func(db *gorm.DB) *gorm.DB {
		if q.Host != "" {
			db = db.Where("host LIKE ?", "%"+q.Host+"%")
		}
		if q.Success != nil {
			db = db.Where("success = ?", *q.Success)
		}
		if q.TabID > 0 {
			db = db.Where("tab_id = ?", q.TabID)
		}
		if q.StartTime > 0 {
			db = db.Where("timestamp >= ?", q.StartTime)
		}
		if q.EndTime > 0 {
			db = db.Where("timestamp <= ?", q.EndTime)
		}
		return db
	})

	total, err := r.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}

	var records []model.KnockEventRecord
	err = filter.Apply(r.Db.WithContext(ctx).Model(&model.KnockEventRecord{})).
		Order("timestamp DESC").
		Order("id DESC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&records).Error
	return records, total, err
}

// DeleteBefore 删除早于给定毫秒时间戳的记录
func (r *KnockHistoryRepo) DeleteBefore(ctx context.Context, ts int64) (int64, error) {
	return r.Delete(ctx, FilterFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where("timestamp < ?", ts)
	}))
}

// Cleanup 按保留天数清理，retentionDays 非正时保留 7 天
func (r *KnockHistoryRepo) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	return r.DeleteBefore(ctx, cutoff)
}

// ClearAll 清空全部历史
func (r *KnockHistoryRepo) ClearAll(ctx context.Context) error {
	_, err := r.Truncate(ctx)
	return err
}

package repo_test

import (
	"context"
	"testing"
	"time"

	"nhpbrowser/internal/logger"
	"nhpbrowser/internal/storage/repo"
	"nhpbrowser/pkg/domain"
)

func newHistory(t *testing.T) *repo.KnockHistoryRepo {
	t.Helper()
	// 刷新间隔足够长，写入只由 Stop 或批量阈值触发
	return repo.NewKnockHistoryRepo(openTestDB(t), logger.NewNop(), repo.KnockHistoryOptions{
		BatchSize:     50,
		FlushInterval: time.Hour,
	})
}

func TestKnockHistoryRepo_StopFlushesBuffer(t *testing.T) {
	r := newHistory(t)

	for i := 0; i < 10; i++ {
		r.Record(domain.KnockEvent{
			TabID:        1,
			Host:         "portal.nhp",
			ResolvedHost: "10.0.0.1",
			URL:          "https://10.0.0.1/",
			Success:      true,
			Timestamp:    int64(1000 + i),
		})
	}
	r.Stop()

	records, total, err := r.Query(context.Background(), repo.KnockQuery{})
	if err != nil {
		t.Fatalf("查询敲门历史失败: %v", err)
	}
	if total != 10 || len(records) != 10 {
		t.Fatalf("预期 10 条记录，实际 total=%d len=%d", total, len(records))
	}
	if records[0].Timestamp != 1009 {
		t.Errorf("结果应按时间倒序，首条时间戳为 %d", records[0].Timestamp)
	}
}

func TestKnockHistoryRepo_QueryFilters(t *testing.T) {
	r := newHistory(t)
	r.Record(domain.KnockEvent{TabID: 1, Host: "a.nhp", Success: true, Timestamp: 100})
	r.Record(domain.KnockEvent{TabID: 2, Host: "b.nhp", Success: false, ErrorCode: "51", ErrorMessage: "server refused", Timestamp: 200})
	r.Record(domain.KnockEvent{TabID: 2, Host: "a.nhp", Success: false, ErrorCode: "CORE_ERROR", Timestamp: 300})
	r.Stop()

	ctx := context.Background()
	failed := false
	tests := []struct {
		name  string
		query repo.KnockQuery
		want  int64
	}{
		{"按主机", repo.KnockQuery{Host: "a.nhp"}, 2},
		{"仅失败", repo.KnockQuery{Success: &failed}, 2},
		{"按标签页", repo.KnockQuery{TabID: 2}, 2},
		{"时间区间", repo.KnockQuery{StartTime: 150, EndTime: 250}, 1},
		{"组合条件", repo.KnockQuery{Host: "a.nhp", Success: &failed}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := r.Query(ctx, tt.query)
			if err != nil {
				t.Fatalf("查询失败: %v", err)
			}
			if total != tt.want {
				t.Errorf("预期 %d 条，实际 %d", tt.want, total)
			}
		})
	}
}

func TestKnockHistoryRepo_Cleanup(t *testing.T) {
	r := newHistory(t)
	old := time.Now().AddDate(0, 0, -10).UnixMilli()
	r.Record(domain.KnockEvent{Host: "old.nhp", Timestamp: old})
	r.Record(domain.KnockEvent{Host: "new.nhp"})
	r.Stop()

	ctx := context.Background()
	n, err := r.Cleanup(ctx, 7)
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if n != 1 {
		t.Errorf("预期清理 1 条，实际 %d", n)
	}

	records, _, _ := r.Query(ctx, repo.KnockQuery{})
	if len(records) != 1 || records[0].Host != "new.nhp" {
		t.Errorf("清理后剩余记录不符: %+v", records)
	}

	if err := r.ClearAll(ctx); err != nil {
		t.Fatalf("清空失败: %v", err)
	}
	_, total, _ := r.Query(ctx, repo.KnockQuery{})
	if total != 0 {
		t.Errorf("清空后仍有 %d 条记录", total)
	}
}

func TestKnockHistoryRepo_BufferCap(t *testing.T) {
	r := repo.NewKnockHistoryRepo(openTestDB(t), nil, repo.KnockHistoryOptions{
		BatchSize:     1000,
		MaxBufferSize: 1000,
		FlushInterval: time.Hour,
	})
	for i := 0; i < 1005; i++ {
		r.Record(domain.KnockEvent{Host: "h.nhp", Timestamp: int64(i + 1)})
	}
	r.Stop()

	_, total, _ := r.Query(context.Background(), repo.KnockQuery{})
	if total < 1000 {
		t.Errorf("记录数不应少于缓冲上限，实际 %d", total)
	}
}

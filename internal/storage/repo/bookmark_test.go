package repo_test

import (
	"context"
	"errors"
	"testing"

	"nhpbrowser/internal/storage/repo"
	"nhpbrowser/pkg/domain"
)

func TestBookmarkRepo_AddRejectsDuplicateURL(t *testing.T) {
	r := repo.NewBookmarkRepo(openTestDB(t))
	ctx := context.Background()

	if _, err := r.Add(ctx, "门户", "https://portal.nhp/"); err != nil {
		t.Fatalf("添加书签失败: %v", err)
	}
	_, err := r.Add(ctx, "另一个标题", "https://portal.nhp/")
	if !errors.Is(err, domain.ErrBookmarkExists) {
		t.Fatalf("重复 URL 应返回 ErrBookmarkExists，实际 %v", err)
	}

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("列出书签失败: %v", err)
	}
	if len(list) != 1 || list[0].Title != "门户" {
		t.Errorf("书签列表不符: %+v", list)
	}
}

func TestBookmarkRepo_ListOrderAndTitleFallback(t *testing.T) {
	r := repo.NewBookmarkRepo(openTestDB(t))
	ctx := context.Background()

	urls := []string{"https://a.example/", "https://b.example/", "https://c.example/"}
	for _, u := range urls {
		if _, err := r.Add(ctx, "", u); err != nil {
			t.Fatalf("添加 %s 失败: %v", u, err)
		}
	}
	list, _ := r.List(ctx)
	if len(list) != len(urls) {
		t.Fatalf("预期 %d 条书签，实际 %d", len(urls), len(list))
	}
	for i, b := range list {
		if b.URL != urls[i] {
			t.Errorf("第 %d 条书签应为 %s，实际 %s", i, urls[i], b.URL)
		}
		if b.Title != b.URL {
			t.Errorf("空标题应回落为 URL，实际 %q", b.Title)
		}
	}
}

func TestBookmarkRepo_RemoveAndClear(t *testing.T) {
	r := repo.NewBookmarkRepo(openTestDB(t))
	ctx := context.Background()

	b, _ := r.Add(ctx, "x", "https://x.example/")
	r.Add(ctx, "y", "https://y.example/")

	if err := r.Remove(ctx, b.ID); err != nil {
		t.Fatalf("删除书签失败: %v", err)
	}
	if err := r.Remove(ctx, b.ID); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("重复删除应返回 ErrRecordNotFound，实际 %v", err)
	}
	if ok, _ := r.Exists(ctx, "https://x.example/"); ok {
		t.Error("已删除的书签仍然存在")
	}

	if err := r.Clear(ctx); err != nil {
		t.Fatalf("清空书签失败: %v", err)
	}
	list, _ := r.List(ctx)
	if len(list) != 0 {
		t.Errorf("清空后仍有 %d 条书签", len(list))
	}
}

func TestBookmarkRepo_AddEmptyURL(t *testing.T) {
	r := repo.NewBookmarkRepo(openTestDB(t))
	if _, err := r.Add(context.Background(), "t", "  "); !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("空 URL 应返回 ErrInvalidURL，实际 %v", err)
	}
}

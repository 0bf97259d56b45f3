package repo_test

import (
	"context"
	"testing"

	"nhpbrowser/internal/config"
	"nhpbrowser/internal/storage/db"
	"nhpbrowser/internal/storage/model"
	"nhpbrowser/internal/storage/repo"

	"gorm.io/gorm"
)

// openTestDB 创建已迁移全部模型的内存数据库
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.New(db.Options{Name: db.MemoryPath, Prefix: "test_"})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}
	if err := db.Migrate(gdb, model.All()...); err != nil {
		t.Fatalf("迁移数据库失败: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func TestSettingsRepo_SetAndGet(t *testing.T) {
	r := repo.NewSettingsRepo(openTestDB(t))
	ctx := context.Background()

	if err := r.Set(ctx, "test_key", "v1"); err != nil {
		t.Fatalf("设置失败: %v", err)
	}
	// 再次写入同一个 key 应覆盖
	if err := r.Set(ctx, "test_key", "v2"); err != nil {
		t.Fatalf("覆盖设置失败: %v", err)
	}
	got, err := r.Get(ctx, "test_key")
	if err != nil {
		t.Fatalf("获取设置失败: %v", err)
	}
	if got != "v2" {
		t.Errorf("预期值为 v2，实际为 %s", got)
	}
}

func TestSettingsRepo_GetWithDefault(t *testing.T) {
	r := repo.NewSettingsRepo(openTestDB(t))
	if got := r.GetWithDefault(context.Background(), "missing", "def"); got != "def" {
		t.Errorf("预期返回默认值 def，实际返回 %s", got)
	}
}

func TestSettingsRepo_LoadDefaults(t *testing.T) {
	defaults := config.GetDefaultSettings()
	r := repo.NewSettingsRepo(openTestDB(t))

	s, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("读取设置失败: %v", err)
	}
	if s.HomeURL != defaults.HomeURL || s.SearchURL != defaults.SearchURL {
		t.Errorf("主页或搜索前缀未取默认值: %+v", s)
	}
	if s.Language != defaults.Language || s.Theme != defaults.Theme || s.DesktopMode {
		t.Errorf("默认设置不符: %+v", s)
	}
}

func TestSettingsRepo_SaveAndLoad(t *testing.T) {
	r := repo.NewSettingsRepo(openTestDB(t))
	ctx := context.Background()

	want := repo.Settings{
		HomeURL:     "https://portal.nhp",
		SearchURL:   "https://search.example/?q=",
		Language:    "en",
		Theme:       "dark",
		DesktopMode: true,
	}
	if err := r.Save(ctx, want); err != nil {
		t.Fatalf("保存设置失败: %v", err)
	}
	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("读取设置失败: %v", err)
	}
	if got != want {
		t.Errorf("设置不一致: 预期 %+v，实际 %+v", want, got)
	}
	if r.GetHomeURL(ctx) != want.HomeURL {
		t.Errorf("GetHomeURL 返回 %s", r.GetHomeURL(ctx))
	}
}

func TestSettingsRepo_DeleteByKey(t *testing.T) {
	r := repo.NewSettingsRepo(openTestDB(t)).WithDefaults(config.DefaultSettings{Theme: "light"})
	ctx := context.Background()

	if err := r.SetTheme(ctx, "dark"); err != nil {
		t.Fatalf("设置主题失败: %v", err)
	}
	if err := r.DeleteByKey(ctx, model.SettingKeyTheme); err != nil {
		t.Fatalf("删除设置失败: %v", err)
	}
	if got := r.GetTheme(ctx); got != "light" {
		t.Errorf("删除后应回落到默认主题 light，实际为 %s", got)
	}
}

package repo

import (
	"context"
	"strconv"
	"time"

	"nhpbrowser/internal/config"
	"nhpbrowser/internal/storage/model"

	"gorm.io/gorm"
)

// Settings 用户设置快照
type Settings struct {
	HomeURL     string `json:"homeUrl"`
	SearchURL   string `json:"searchUrl"`
	Language    string `json:"language"`
	Theme       string `json:"theme"`
	DesktopMode bool   `json:"desktopMode"`
}

// SettingsRepo 设置仓库
type SettingsRepo struct {
	BaseRepository[model.Setting]
	defaults config.DefaultSettings
}

// NewSettingsRepo 创建设置仓库实例
func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{
		BaseRepository: *NewBaseRepository[model.Setting](db),
		defaults:       config.GetDefaultSettings(),
	}
}

// WithDefaults 替换默认值，通常来自配置文件
func (r *SettingsRepo) WithDefaults(d config.DefaultSettings) *SettingsRepo {
	r.defaults = d
	return r
}

// Get 获取设置值，不存在时返回 gorm.ErrRecordNotFound
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var setting model.Setting
	if err := r.Db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

// GetWithDefault 获取设置值，不存在时返回默认值
func (r *SettingsRepo) GetWithDefault(ctx context.Context, key, defaultValue string) string {
	val, err := r.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	return val
}

// Set 设置值（存在则更新，不存在则创建）
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	setting := model.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.Db.WithContext(ctx).Save(&setting).Error
}

// DeleteByKey 根据 key 删除设置
func (r *SettingsRepo) DeleteByKey(ctx context.Context, key string) error {
	return r.Db.WithContext(ctx).Delete(&model.Setting{}, "key = ?", key).Error
}

// GetAll 获取所有已保存的设置
func (r *SettingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	settings, err := r.FindAll(ctx, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(settings))
	for _, s := range settings {
		result[s.Key] = s.Value
	}
	return result, nil
}

// SetMultiple 批量设置
func (r *SettingsRepo) SetMultiple(ctx context.Context, kvs map[string]string) error {
	return r.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for key, value := range kvs {
			setting := model.Setting{Key: key, Value: value, UpdatedAt: now}
			if err := tx.Save(&setting).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Load 读取全部用户设置，未保存的项取默认值
func (r *SettingsRepo) Load(ctx context.Context) (Settings, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return Settings{}, err
	}
	pick := func(key, def string) string {
		if v, ok := all[key]; ok && v != "" {
			return v
		}
		return def
	}
	desktop, _ := strconv.ParseBool(pick(model.SettingKeyDesktopMode, r.defaults.DesktopMode))
	return Settings{
		HomeURL:     pick(model.SettingKeyHomeURL, r.defaults.HomeURL),
		SearchURL:   pick(model.SettingKeySearchURL, r.defaults.SearchURL),
		Language:    pick(model.SettingKeyLanguage, r.defaults.Language),
		Theme:       pick(model.SettingKeyTheme, r.defaults.Theme),
		DesktopMode: desktop,
	}, nil
}

// Save 保存全部用户设置
func (r *SettingsRepo) Save(ctx context.Context, s Settings) error {
	return r.SetMultiple(ctx, map[string]string{
		model.SettingKeyHomeURL:     s.HomeURL,
		model.SettingKeySearchURL:   s.SearchURL,
		model.SettingKeyLanguage:    s.Language,
		model.SettingKeyTheme:       s.Theme,
		model.SettingKeyDesktopMode: strconv.FormatBool(s.DesktopMode),
	})
}

// GetHomeURL 获取主页
func (r *SettingsRepo) GetHomeURL(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeyHomeURL, r.defaults.HomeURL)
}

// SetHomeURL 设置主页
func (r *SettingsRepo) SetHomeURL(ctx context.Context, url string) error {
	return r.Set(ctx, model.SettingKeyHomeURL, url)
}

// GetSearchURL 获取搜索引擎前缀
func (r *SettingsRepo) GetSearchURL(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeySearchURL, r.defaults.SearchURL)
}

// GetTheme 获取主题
func (r *SettingsRepo) GetTheme(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeyTheme, r.defaults.Theme)
}

// SetTheme 设置主题
func (r *SettingsRepo) SetTheme(ctx context.Context, theme string) error {
	return r.Set(ctx, model.SettingKeyTheme, theme)
}

// GetLanguage 获取界面语言
func (r *SettingsRepo) GetLanguage(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeyLanguage, r.defaults.Language)
}

// SetLanguage 设置界面语言
func (r *SettingsRepo) SetLanguage(ctx context.Context, lang string) error {
	return r.Set(ctx, model.SettingKeyLanguage, lang)
}

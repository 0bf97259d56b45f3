package repo

import (
	"context"
	"strings"
	"time"

	"nhpbrowser/internal/storage/model"
	"nhpbrowser/pkg/domain"

	"gorm.io/gorm"
)

// BookmarkRepo 书签仓库
type BookmarkRepo struct {
	BaseRepository[model.Bookmark]
}

// NewBookmarkRepo 创建书签仓库实例
func NewBookmarkRepo(db *gorm.DB) *BookmarkRepo {
	return &BookmarkRepo{
		BaseRepository: *NewBaseRepository[model.Bookmark](db),
	}
}

// Add 添加书签，URL 已存在时返回 domain.ErrBookmarkExists
func (r *BookmarkRepo) Add(ctx context.Context, title, url string) (*model.Bookmark, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, domain.ErrInvalidURL
	}
	if title = strings.TrimSpace(title); title == "" {
		title = url
	}

	var created *model.Bookmark
	err := r.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := r.Count(ctx, byURL(url), WithTx(tx))
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrBookmarkExists
		}
		b := &model.Bookmark{Title: title, URL: url, CreatedAt: time.Now()}
		if err := r.Create(ctx, b, WithTx(tx)); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Exists 判断 URL 是否已收藏
func (r *BookmarkRepo) Exists(ctx context.Context, url string) (bool, error) {
	n, err := r.Count(ctx, byURL(strings.TrimSpace(url)))
	return n > 0, err
}

// List 按添加顺序列出书签
func (r *BookmarkRepo) List(ctx context.Context) ([]model.Bookmark, error) {
	return r.FindAll(ctx, nil, nil, Orders{{Field: "id", Sort: "ASC"}})
}

// Remove 删除书签，不存在时返回 domain.ErrRecordNotFound
func (r *BookmarkRepo) Remove(ctx context.Context, id uint) error {
	n, err := r.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// Clear 删除全部书签
func (r *BookmarkRepo) Clear(ctx context.Context) error {
	_, err := r.Truncate(ctx)
	return err
}

func byURL(url string) Filter {
	return FilterFunc(func(db *gorm.DB) *gorm.DB { return db.Where("url = ?", url) })
}

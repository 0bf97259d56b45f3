package gui

import (
	"nhpbrowser/internal/storage/model"
	"nhpbrowser/internal/storage/repo"
	"nhpbrowser/pkg/domain"
)

// NavigationData 导航结果
type NavigationData struct {
	Decision domain.NavigationDecision `json:"decision"`
}

// TabsData 标签页列表
type TabsData struct {
	Tabs domain.TabsSnapshot `json:"tabs"`
}

// TabData 单个标签页
type TabData struct {
	Tab domain.Tab `json:"tab"`
}

// SecurityData 地址栏安全状态
type SecurityData struct {
	Security domain.SecurityState `json:"security"`
}

// QRData 扫码登录状态
type QRData struct {
	State domain.QRState `json:"state"`
}

// BookmarkData 单个书签
type BookmarkData struct {
	Bookmark *model.Bookmark `json:"bookmark"`
}

// BookmarkListData 书签列表
type BookmarkListData struct {
	Bookmarks []model.Bookmark `json:"bookmarks"`
}

// SettingsData 用户设置
type SettingsData struct {
	Settings repo.Settings `json:"settings"`
}

// SettingData 单个设置值
type SettingData struct {
	Value string `json:"value"`
}

// KnockHistoryData 敲门历史
type KnockHistoryData struct {
	Events []model.KnockEventRecord `json:"events"`
	Total  int64                    `json:"total"`
}

// CoreStatusData 协议内核状态
type CoreStatusData struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// BrowserData 浏览器状态
type BrowserData struct {
	Running     bool   `json:"running"`
	DevToolsURL string `json:"devToolsUrl,omitempty"`
}

// VersionData 版本信息
type VersionData struct {
	Version string `json:"version"`
}

// CleanupData 清理结果
type CleanupData struct {
	Deleted int64 `json:"deleted"`
}

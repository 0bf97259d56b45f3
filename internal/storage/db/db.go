package db

import (
	"os"
	"path/filepath"

	"nhpbrowser/internal/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// MemoryPath 内存数据库路径，测试使用
const MemoryPath = ":memory:"

// Options 数据库配置选项
type Options struct {
	// Name 数据库文件名，位于应用数据目录下
	Name string
	// FullPath 完整路径，非空时忽略 Name
	FullPath string
	// Prefix 表前缀
	Prefix string
	// Logger GORM 日志实现
	Logger glog.Interface
}

// New 创建并初始化数据库连接
func New(opts Options) (*gorm.DB, error) {
	dbPath := opts.FullPath
	if dbPath == "" {
		if opts.Name == MemoryPath {
			dbPath = MemoryPath
		} else {
			p, err := GetDefaultPath(opts.Name)
			if err != nil {
				return nil, err
			}
			dbPath = p
		}
	}

	memory := dbPath == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	cfg := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   opts.Prefix,
			SingularTable: true,
		},
	}
	if opts.Logger != nil {
		cfg.Logger = opts.Logger
	} else {
		cfg.Logger = glog.Discard
	}

	db, err := gorm.Open(sqlite.Open(dbPath), cfg)
	if err != nil {
		return nil, err
	}

	// 内存库每个连接都是独立的数据库，只能保留一个连接
	sqlDB, err := db.DB()
	if err == nil {
		if memory {
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxIdleConns(4)
			sqlDB.SetMaxOpenConns(16)
		}
	}

	return db, nil
}

// Migrate 执行数据库自动迁移
func Migrate(db *gorm.DB, models ...any) error {
	return db.AutoMigrate(models...)
}

// GetDefaultPath 获取平台相关的默认数据库文件路径
func GetDefaultPath(dbName string) (string, error) {
	dir, err := logger.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbName), nil
}

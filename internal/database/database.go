package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/routine-gin/internal/config"
	"github.com/mautops/routine-gin/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 600,  // 10 分钟
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := BuildDSN(cfg)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 从配置中读取连接池参数,未设置的项使用默认值
	poolConfig := GetPoolConfig()
	if cfg.MaxIdleConns > 0 {
		poolConfig.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		// 如果不是最后一次重试，等待后重试
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	// 检测数据库类型
	dialector := db.Dialector.Name()

	// SQLite 对部分列类型与默认值语法支持有限,手动建表
	// GORM SQLite dialector 的名称可能是 "sqlite" 或 "sqlite3"
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		// PostgreSQL 等其他数据库使用 AutoMigrate
		if err := db.AutoMigrate(
			&model.RoutineModel{},
			&model.ChecklistItemModel{},
			&model.ExecutionModel{},
			&model.ChecklistAnswerModel{},
			&model.AttachmentModel{},
			&model.AuditLogModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	// 创建索引
	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createSQLiteTables 为 SQLite 手动创建表
func createSQLiteTables(db *gorm.DB) error {
	// 创建 routines 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS routines (
			id VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			type VARCHAR(16) NOT NULL,
			periodicity VARCHAR(16),
			start_date VARCHAR(10) NOT NULL,
			weekday VARCHAR(32),
			start_time VARCHAR(5),
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			urgency VARCHAR(16) NOT NULL,
			has_checklist BOOLEAN NOT NULL DEFAULT 0,
			requires_attachment BOOLEAN NOT NULL DEFAULT 0,
			responsible_user_id VARCHAR(64) NOT NULL,
			department_id VARCHAR(64),
			sector_id VARCHAR(64),
			region_id VARCHAR(64),
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create routines table: %w", err)
	}

	// 创建 checklist_items 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checklist_items (
			id VARCHAR(64) PRIMARY KEY,
			routine_id VARCHAR(64) NOT NULL,
			sort_order INTEGER NOT NULL,
			description TEXT NOT NULL,
			required BOOLEAN NOT NULL DEFAULT 0,
			requires_attachment BOOLEAN NOT NULL DEFAULT 0,
			value_type VARCHAR(16) NOT NULL DEFAULT 'none',
			min_value REAL,
			max_value REAL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create checklist_items table: %w", err)
	}

	// 创建 executions 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id VARCHAR(64) PRIMARY KEY,
			routine_id VARCHAR(64) NOT NULL,
			executor_id VARCHAR(64) NOT NULL,
			day VARCHAR(10) NOT NULL,
			state VARCHAR(16) NOT NULL,
			started_at DATETIME,
			paused_at DATETIME,
			finished_at DATETIME,
			elapsed_seconds INTEGER NOT NULL DEFAULT 0,
			notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create executions table: %w", err)
	}

	// 创建 checklist_answers 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checklist_answers (
			id VARCHAR(64) PRIMARY KEY,
			execution_id VARCHAR(64) NOT NULL,
			item_id VARCHAR(64) NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT 0,
			numeric_value REAL,
			text_value TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create checklist_answers table: %w", err)
	}

	// 创建 attachments 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS attachments (
			id VARCHAR(64) PRIMARY KEY,
			routine_id VARCHAR(64) NOT NULL,
			execution_id VARCHAR(64),
			reference VARCHAR(512) NOT NULL,
			description TEXT,
			uploaded_by VARCHAR(64),
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create attachments table: %w", err)
	}

	// 创建 audit_logs 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create audit_logs table: %w", err)
	}

	return nil
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	// routines 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_routines_responsible ON routines(responsible_user_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_routines_responsible: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_routines_sector ON routines(sector_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_routines_sector: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_routines_region ON routines(region_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_routines_region: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_routines_type_periodicity ON routines(type, periodicity)").Error; err != nil {
		return fmt.Errorf("failed to create idx_routines_type_periodicity: %w", err)
	}

	// checklist_items 表索引: 同一任务内顺序唯一
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_checklist_routine_order ON checklist_items(routine_id, sort_order)").Error; err != nil {
		return fmt.Errorf("failed to create idx_checklist_routine_order: %w", err)
	}

	// executions 表索引: 部分唯一索引保证同一 (任务, 执行人, 日期) 至多一条未完成记录,
	// 并发 start 撞上该索引时由服务层幂等返回已有记录
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_open ON executions(routine_id, executor_id, day) WHERE finished_at IS NULL").Error; err != nil {
		return fmt.Errorf("failed to create idx_executions_open: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_routine_executor_day ON executions(routine_id, executor_id, day)").Error; err != nil {
		return fmt.Errorf("failed to create idx_executions_routine_executor_day: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_executions_started_at: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_state ON executions(state)").Error; err != nil {
		return fmt.Errorf("failed to create idx_executions_state: %w", err)
	}

	// checklist_answers 表索引: 同一执行内每个检查项至多一行作答
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_execution_item ON checklist_answers(execution_id, item_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_answers_execution_item: %w", err)
	}

	// attachments 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_attachments_execution ON attachments(execution_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_attachments_execution: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_attachments_routine ON attachments(routine_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_attachments_routine: %w", err)
	}

	// audit_logs 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_resource: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_user_id: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_audit_created_at: %w", err)
	}

	return nil
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return false
	}

	return true
}

// Reconnect 重新连接数据库
func Reconnect(cfg config.DatabaseConfig, oldDB *gorm.DB) (*gorm.DB, error) {
	// 关闭旧连接
	if oldDB != nil {
		if sqlDB, err := oldDB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	// 重新连接
	return Connect(cfg)
}

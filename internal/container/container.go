package container

import (
	"fmt"
	"time"

	"github.com/mautops/routine-gin/internal/config"
	"github.com/mautops/routine-gin/internal/database"
	"github.com/mautops/routine-gin/internal/repository"
	"github.com/mautops/routine-gin/internal/service"
	"github.com/mautops/routine-gin/internal/storage"
	"github.com/mautops/routine-gin/internal/websocket"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、存储、事件 hub 与各业务服务
type Container struct {
	db           *gorm.DB
	blobStore    storage.BlobStore
	hub          *websocket.Hub
	auditLogSvc  service.AuditLogService
	routineSvc   service.RoutineService
	executionSvc service.ExecutionService
	reportSvc    service.ReportService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 初始化附件 blob 存储
	blobStore := storage.NewLocalBlobStore(cfg.Storage.AttachmentDir)

	// 3. 初始化 WebSocket hub (需由调用方启动 hub.Run)
	hub := websocket.NewHub()

	// 4. 初始化业务服务
	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	routineSvc := service.NewRoutineService(db, auditLogSvc)
	executionSvc := service.NewExecutionService(db, blobStore, auditLogSvc, hub)
	reportSvc := service.NewReportService(db)

	return &Container{
		db:           db,
		blobStore:    blobStore,
		hub:          hub,
		auditLogSvc:  auditLogSvc,
		routineSvc:   routineSvc,
		executionSvc: executionSvc,
		reportSvc:    reportSvc,
	}, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// BlobStore 获取附件存储
func (c *Container) BlobStore() storage.BlobStore {
	return c.blobStore
}

// Hub 获取 WebSocket hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// AuditLogService 获取审计日志服务
func (c *Container) AuditLogService() service.AuditLogService {
	return c.auditLogSvc
}

// RoutineService 获取例行任务服务
func (c *Container) RoutineService() service.RoutineService {
	return c.routineSvc
}

// ExecutionService 获取执行状态机服务
func (c *Container) ExecutionService() service.ExecutionService {
	return c.executionSvc
}

// ReportService 获取统计聚合服务
func (c *Container) ReportService() service.ReportService {
	return c.reportSvc
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	return nil
}

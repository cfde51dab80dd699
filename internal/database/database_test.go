package database_test

import (
	"testing"
	"time"

	"github.com/mautops/routine-gin/internal/database"
	"github.com/mautops/routine-gin/internal/model"
	"github.com/mautops/routine-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMigratedDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func timePtr(v time.Time) *time.Time {
	return &v
}

// TestMigrate_SchemaMatchesModels 手工 DDL 必须覆盖模型的全部字段
// 六张表各写入一条满字段记录并读回
func TestMigrate_SchemaMatchesModels(t *testing.T) {
	db := setupMigratedDB(t)
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	weekday := "monday"
	startTime := "08:00"
	sector := "sec-001"
	region := "reg-001"
	minValue := 5.0
	maxValue := 10.0
	numeric := 7.0
	text := "ok"
	executionID := "exe-001"

	require.NoError(t, db.Create(&model.RoutineModel{
		ID: "rtn-001", Title: "机房巡检", Description: "每日巡检", Type: model.RoutineTypeNormal,
		Periodicity: model.PeriodicityWeekly, StartDate: "2025-06-01", Weekday: &weekday,
		StartTime: &startTime, DurationMinutes: 30, Urgency: model.UrgencyHigh,
		HasChecklist: true, RequiresAttachment: true, ResponsibleUserID: "user-001",
		SectorID: &sector, RegionID: &region, CreatedBy: "planner-001",
		CreatedAt: now, UpdatedAt: now,
	}).Error)

	require.NoError(t, db.Create(&model.ChecklistItemModel{
		ID: "itm-001", RoutineID: "rtn-001", SortOrder: 1, Description: "温度检查",
		Required: true, RequiresAttachment: true, ValueType: model.ValueTypeNumeric,
		MinValue: &minValue, MaxValue: &maxValue, CreatedAt: now, UpdatedAt: now,
	}).Error)

	require.NoError(t, db.Create(&model.ExecutionModel{
		ID: executionID, RoutineID: "rtn-001", ExecutorID: "user-001", Day: "2025-06-02",
		State: model.ExecutionStateRunning, StartedAt: timePtr(now),
		ElapsedSeconds: 30, Notes: "现场备注", CreatedAt: now, UpdatedAt: now,
	}).Error)

	require.NoError(t, db.Create(&model.ChecklistAnswerModel{
		ID: "ans-001", ExecutionID: executionID, ItemID: "itm-001", Completed: true,
		NumericValue: &numeric, TextValue: &text, CreatedAt: now, UpdatedAt: now,
	}).Error)

	require.NoError(t, db.Create(&model.AttachmentModel{
		ID: "att-001", RoutineID: "rtn-001", ExecutionID: &executionID,
		Reference: "2025-06-02/abc_photo.jpg", Description: "现场照片",
		UploadedBy: "user-001", CreatedAt: now,
	}).Error)

	require.NoError(t, db.Create(&model.AuditLogModel{
		ID: "log-001", UserID: "user-001", Action: "start", ResourceType: "execution",
		ResourceID: executionID, RequestID: "req-001", IP: "10.0.0.1",
		UserAgent: "curl/8.0", Details: []byte(`{"day":"2025-06-02"}`), CreatedAt: now,
	}).Error)

	var stored model.ExecutionModel
	require.NoError(t, db.Where("id = ?", executionID).First(&stored).Error)
	assert.Equal(t, "现场备注", stored.Notes)
	assert.Equal(t, int64(30), stored.ElapsedSeconds)
}

// TestMigrate_OpenExecutionUniqueness 部分唯一索引保证同一
// (任务, 执行人, 日期) 至多一条未完成记录,已完成记录不占用约束
func TestMigrate_OpenExecutionUniqueness(t *testing.T) {
	db := setupMigratedDB(t)
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	open := func(id string) *model.ExecutionModel {
		return &model.ExecutionModel{
			ID: id, RoutineID: "rtn-001", ExecutorID: "user-001", Day: "2025-06-02",
			State: model.ExecutionStateRunning, StartedAt: timePtr(now),
			CreatedAt: now, UpdatedAt: now,
		}
	}

	require.NoError(t, db.Create(open("exe-001")).Error)

	// 第二条未完成记录撞索引
	err := db.Create(open("exe-002")).Error
	require.Error(t, err)
	assert.True(t, repository.IsDuplicate(err))

	// 完成第一条后允许再次启动
	require.NoError(t, db.Model(&model.ExecutionModel{}).
		Where("id = ?", "exe-001").
		Updates(map[string]interface{}{"finished_at": now, "state": model.ExecutionStateFinished}).Error)
	assert.NoError(t, db.Create(open("exe-003")).Error)
}

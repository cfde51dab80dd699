package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/routine-gin/internal/database"
	"github.com/mautops/routine-gin/internal/engine"
	"github.com/mautops/routine-gin/internal/model"
	"github.com/mautops/routine-gin/internal/service"
	"github.com/mautops/routine-gin/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

// setupTestDB 创建测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&model.RoutineModel{},
		&model.ChecklistItemModel{},
		&model.ExecutionModel{},
		&model.ChecklistAnswerModel{},
		&model.AttachmentModel{},
		&model.AuditLogModel{},
	)
	require.NoError(t, err)

	return db
}

// newExecutionService 创建使用固定时钟的执行服务
func newExecutionService(t *testing.T, db *gorm.DB) service.ExecutionService {
	fixed := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	blobStore := storage.NewLocalBlobStore(t.TempDir())
	return service.NewExecutionServiceWithClock(db, blobStore, nil, nil, func() time.Time {
		return fixed
	})
}

// seedRoutine 写入一个 daily normal 任务
func seedRoutine(t *testing.T, db *gorm.DB, id, user string, startTime *string, duration int) *model.RoutineModel {
	routine := &model.RoutineModel{
		ID:                id,
		Title:             "机房巡检",
		Type:              model.RoutineTypeNormal,
		Periodicity:       model.PeriodicityDaily,
		StartDate:         "2025-06-01",
		StartTime:         startTime,
		DurationMinutes:   duration,
		Urgency:           model.UrgencyMedium,
		ResponsibleUserID: user,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(routine).Error)
	return routine
}

// seedItem 写入检查项模板
func seedItem(t *testing.T, db *gorm.DB, routineID string, order int, mutate func(*model.ChecklistItemModel)) *model.ChecklistItemModel {
	item := &model.ChecklistItemModel{
		ID:          uuid.New().String(),
		RoutineID:   routineID,
		SortOrder:   order,
		Description: "检查项",
		ValueType:   model.ValueTypeNone,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if mutate != nil {
		mutate(item)
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

// TestExecutionStart 启动执行并实例化作答行
func TestExecutionStart(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", strPtr("08:00"), 30)
	seedItem(t, db, routine.ID, 1, nil)
	seedItem(t, db, routine.ID, 2, nil)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStateRunning, execution.CurrentState())
	assert.NotNil(t, execution.StartedAt)
	assert.Equal(t, int64(0), execution.ElapsedSeconds)

	answers, err := svc.ListAnswers(execution.ID)
	require.NoError(t, err)
	assert.Len(t, answers, 2, "one answer row per template item")
	for _, a := range answers {
		assert.False(t, a.Completed)
	}
}

// TestExecutionStart_Idempotent 同一 (任务, 执行人, 日期) 重复启动幂等返回
func TestExecutionStart_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)

	req := &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	}
	first, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&model.ExecutionModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// TestExecutionStart_RoutineNotFound 未知任务返回 NotFoundError
func TestExecutionStart_RoutineNotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)

	_, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  "missing",
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.Error(t, err)
	var notFound *engine.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// TestExecutionStart_Conflict 时间窗重叠的 daily normal 任务被拒绝启动
func TestExecutionStart_Conflict(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	seedRoutine(t, db, "rtn-001", "user-001", strPtr("08:00"), 60)
	candidate := seedRoutine(t, db, "rtn-002", "user-001", strPtr("08:30"), 30)

	_, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  candidate.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.Error(t, err)
	var conflict *engine.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "rtn-001", conflict.ConflictingRoutineID)

	// 冲突被拒后不应留下执行记录
	var count int64
	require.NoError(t, db.Model(&model.ExecutionModel{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

// TestExecutionStart_NoConflictAcrossUsers 不同执行人不受对方时间窗影响
func TestExecutionStart_NoConflictAcrossUsers(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	seedRoutine(t, db, "rtn-001", "user-001", strPtr("08:00"), 60)
	candidate := seedRoutine(t, db, "rtn-002", "user-002", strPtr("08:30"), 30)

	_, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  candidate.ID,
		ExecutorID: "user-002",
		Day:        "2025-06-02",
	})
	assert.NoError(t, err)
}

// TestExecutionPauseResume 暂停/恢复状态转换
func TestExecutionPauseResume(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	paused, err := svc.Pause(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatePaused, paused.CurrentState())

	// 暂停中再暂停是非法转换
	_, err = svc.Pause(context.Background(), execution.ID)
	var invalid *engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "pause", invalid.Operation)

	resumed, err := svc.Resume(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStateRunning, resumed.CurrentState())

	// 运行中恢复是非法转换
	_, err = svc.Resume(context.Background(), execution.ID)
	assert.ErrorAs(t, err, &invalid)
}

// TestExecutionTick 心跳累加与暂停中的空操作
func TestExecutionTick(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	ticked, err := svc.Tick(context.Background(), execution.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(15), ticked.ElapsedSeconds)

	ticked, err = svc.Tick(context.Background(), execution.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(30), ticked.ElapsedSeconds)

	// 暂停中的心跳不累加
	_, err = svc.Pause(context.Background(), execution.ID)
	require.NoError(t, err)
	ticked, err = svc.Tick(context.Background(), execution.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(30), ticked.ElapsedSeconds)

	// 非正增量不累加
	_, err = svc.Resume(context.Background(), execution.ID)
	require.NoError(t, err)
	ticked, err = svc.Tick(context.Background(), execution.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30), ticked.ElapsedSeconds)
}

// TestExecutionRecordAnswer 作答 upsert 与归属校验
func TestExecutionRecordAnswer(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)
	item := seedItem(t, db, routine.ID, 1, func(i *model.ChecklistItemModel) {
		i.ValueType = model.ValueTypeNumeric
	})

	other := seedRoutine(t, db, "rtn-002", "user-002", nil, 30)
	foreignItem := seedItem(t, db, other.ID, 1, nil)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	answer, err := svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{
		ItemID:       item.ID,
		Completed:    true,
		NumericValue: floatPtr(7),
	})
	require.NoError(t, err)
	assert.True(t, answer.Completed)
	require.NotNil(t, answer.NumericValue)
	assert.Equal(t, 7.0, *answer.NumericValue)

	// 再次作答覆盖同一行
	updated, err := svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{
		ItemID:       item.ID,
		Completed:    true,
		NumericValue: floatPtr(9),
	})
	require.NoError(t, err)
	assert.Equal(t, answer.ID, updated.ID)

	// 别的任务的检查项不可作答
	_, err = svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{
		ItemID:    foreignItem.ID,
		Completed: true,
	})
	var notFound *engine.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// TestExecutionFinishGate 完成门禁收集全部违规项
func TestExecutionFinishGate(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)
	numeric := seedItem(t, db, routine.ID, 1, func(i *model.ChecklistItemModel) {
		i.Required = true
		i.ValueType = model.ValueTypeNumeric
		i.MinValue = floatPtr(5)
		i.MaxValue = floatPtr(10)
	})
	text := seedItem(t, db, routine.ID, 2, func(i *model.ChecklistItemModel) {
		i.Required = true
		i.ValueType = model.ValueTypeText
	})

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	// 两个必填项都未完成: 两条违规
	_, err = svc.Finish(context.Background(), execution.ID, nil)
	var validationErr *engine.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Violations, 2)

	// 数值越界仍然违规
	_, err = svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{
		ItemID:       numeric.ID,
		Completed:    true,
		NumericValue: floatPtr(3),
	})
	require.NoError(t, err)
	_, err = svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{
		ItemID:    text.ID,
		Completed: true,
		TextValue: strPtr("   "),
	})
	require.NoError(t, err)

	_, err = svc.Finish(context.Background(), execution.ID, nil)
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Violations, 2, "below minimum and blank text")

	// 门禁失败后执行记录保持原状
	current, err := svc.Get(execution.ID)
	require.NoError(t, err)
	assert.False(t, current.IsFinished())

	// 修正后可完成
	_, err = svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{
		ItemID:       numeric.ID,
		Completed:    true,
		NumericValue: floatPtr(7),
	})
	require.NoError(t, err)
	_, err = svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{
		ItemID:    text.ID,
		Completed: true,
		TextValue: strPtr("ok"),
	})
	require.NoError(t, err)

	finished, err := svc.Finish(context.Background(), execution.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStateFinished, finished.CurrentState())
	assert.NotNil(t, finished.FinishedAt)
}

// TestExecutionFinishGate_Attachment 附件要求未满足时拒绝完成
func TestExecutionFinishGate_Attachment(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)
	require.NoError(t, db.Model(routine).Update("requires_attachment", true).Error)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	_, err = svc.Finish(context.Background(), execution.ID, nil)
	var validationErr *engine.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Violations, 1)

	// 上传附件后门禁放行
	_, err = svc.Attach(context.Background(), execution.ID, &service.AttachRequest{
		Filename:   "photo.jpg",
		Content:    []byte("fake image bytes"),
		UploadedBy: "user-001",
	})
	require.NoError(t, err)

	_, err = svc.Finish(context.Background(), execution.ID, nil)
	assert.NoError(t, err)
}

// TestExecutionFinished_Immutable 终态后所有变更操作被拒绝
func TestExecutionFinished_Immutable(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)
	item := seedItem(t, db, routine.ID, 1, nil)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)
	_, err = svc.Finish(context.Background(), execution.ID, nil)
	require.NoError(t, err)

	var invalid *engine.InvalidStateError
	_, err = svc.Pause(context.Background(), execution.ID)
	assert.ErrorAs(t, err, &invalid)
	_, err = svc.Tick(context.Background(), execution.ID, 10)
	assert.ErrorAs(t, err, &invalid)
	_, err = svc.RecordAnswer(context.Background(), execution.ID, &service.RecordAnswerRequest{ItemID: item.ID, Completed: true})
	assert.ErrorAs(t, err, &invalid)
	_, err = svc.Finish(context.Background(), execution.ID, nil)
	assert.ErrorAs(t, err, &invalid)
	_, err = svc.Attach(context.Background(), execution.ID, &service.AttachRequest{Filename: "a.txt", Content: []byte("x")})
	assert.ErrorAs(t, err, &invalid)
}

// TestExecutionFinish_Notes 完成时记录结项备注
func TestExecutionFinish_Notes(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	finished, err := svc.Finish(context.Background(), execution.ID, &service.FinishExecutionRequest{
		Notes: "  全部巡检点确认完毕  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "全部巡检点确认完毕", finished.Notes)

	// 备注已持久化
	stored, err := svc.Get(execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "全部巡检点确认完毕", stored.Notes)
}

// TestExecutionLifecycle_MigratedSchema 手工建表的 SQLite 库上状态机完整可用
func TestExecutionLifecycle_MigratedSchema(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", strPtr("08:00"), 30)
	seedItem(t, db, routine.ID, 1, nil)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	_, err = svc.Tick(context.Background(), execution.ID, 45)
	require.NoError(t, err)

	finished, err := svc.Finish(context.Background(), execution.ID, &service.FinishExecutionRequest{Notes: "done"})
	require.NoError(t, err)
	assert.Equal(t, "done", finished.Notes)
	assert.Equal(t, int64(45), finished.ElapsedSeconds)
}

// TestExecutionGetToday 未完成记录的查找语义
func TestExecutionGetToday(t *testing.T) {
	db := setupTestDB(t)
	svc := newExecutionService(t, db)
	routine := seedRoutine(t, db, "rtn-001", "user-001", nil, 30)

	// 不存在时返回 nil 而不是错误
	open, err := svc.GetToday(routine.ID, "user-001", "2025-06-02")
	require.NoError(t, err)
	assert.Nil(t, open)

	execution, err := svc.Start(context.Background(), &service.StartExecutionRequest{
		RoutineID:  routine.ID,
		ExecutorID: "user-001",
		Day:        "2025-06-02",
	})
	require.NoError(t, err)

	open, err = svc.GetToday(routine.ID, "user-001", "2025-06-02")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, execution.ID, open.ID)

	// 完成后不再算未完成记录
	_, err = svc.Finish(context.Background(), execution.ID, nil)
	require.NoError(t, err)
	open, err = svc.GetToday(routine.ID, "user-001", "2025-06-02")
	require.NoError(t, err)
	assert.Nil(t, open)
}

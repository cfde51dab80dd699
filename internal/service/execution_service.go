package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/routine-gin/internal/engine"
	"github.com/mautops/routine-gin/internal/metrics"
	"github.com/mautops/routine-gin/internal/model"
	"github.com/mautops/routine-gin/internal/repository"
	"github.com/mautops/routine-gin/internal/storage"
	"gorm.io/gorm"
)

// ExecutionEventPublisher 执行状态事件发布接口 (由 websocket hub 实现)
type ExecutionEventPublisher interface {
	PublishExecutionEvent(eventType string, execution *model.ExecutionModel)
}

// ExecutionService 执行状态机服务接口
// 管理一次执行的完整生命周期: 创建(含冲突准入)、暂停/恢复、计时心跳、
// 检查项作答、完成门禁校验;完成后记录不可变更
type ExecutionService interface {
	Start(ctx context.Context, req *StartExecutionRequest) (*model.ExecutionModel, error)
	Get(id string) (*model.ExecutionModel, error)
	GetToday(routineID string, executorID string, day string) (*model.ExecutionModel, error)
	Pause(ctx context.Context, id string) (*model.ExecutionModel, error)
	Resume(ctx context.Context, id string) (*model.ExecutionModel, error)
	Tick(ctx context.Context, id string, deltaSeconds int64) (*model.ExecutionModel, error)
	RecordAnswer(ctx context.Context, id string, req *RecordAnswerRequest) (*model.ChecklistAnswerModel, error)
	Finish(ctx context.Context, id string, req *FinishExecutionRequest) (*model.ExecutionModel, error)
	Attach(ctx context.Context, id string, req *AttachRequest) (*model.AttachmentModel, error)
	ListAnswers(id string) ([]*model.ChecklistAnswerModel, error)
	ListAttachments(id string) ([]*model.AttachmentModel, error)
}

// StartExecutionRequest 创建/重入执行的请求参数
// @Description 启动执行的请求参数
type StartExecutionRequest struct {
	RoutineID  string `json:"routine_id" example:"rtn-001" binding:"required"` // 例行任务 ID
	ExecutorID string `json:"executor_id" example:"user-001" binding:"required"` // 执行人 ID
	Day        string `json:"day" example:"2025-06-02"` // 执行日期 YYYY-MM-DD,缺省为当天
}

// RecordAnswerRequest 检查项作答请求
// @Description 记录检查项作答的请求参数
type RecordAnswerRequest struct {
	ItemID       string   `json:"item_id" example:"itm-001" binding:"required"` // 检查项模板 ID
	Completed    bool     `json:"completed" example:"true"` // 是否完成
	NumericValue *float64 `json:"numeric_value" example:"7"` // 数值型作答
	TextValue    *string  `json:"text_value" example:"ok"` // 文本型作答
}

// FinishExecutionRequest 完成执行的请求参数
// @Description 完成执行的请求参数,notes 为可选的结项备注
type FinishExecutionRequest struct {
	Notes string `json:"notes" example:"全部巡检点确认完毕"` // 结项备注
}

// AttachRequest 附件上传请求
// @Description 附件上传的请求参数,内容为 base64 编码
type AttachRequest struct {
	Filename    string `json:"filename" example:"photo.jpg" binding:"required"` // 原始文件名
	Description string `json:"description" example:"现场照片"` // 附件说明
	Content     []byte `json:"content" binding:"required"` // 文件内容
	UploadedBy  string `json:"uploaded_by" example:"user-001"` // 上传人 ID
}

// executionService 执行状态机服务实现
type executionService struct {
	db          *gorm.DB
	execRepo    repository.ExecutionRepository
	routineRepo repository.RoutineRepository
	attachRepo  repository.AttachmentRepository
	blobStore   storage.BlobStore
	auditLogSvc AuditLogService
	events      ExecutionEventPublisher
	now         func() time.Time
}

// NewExecutionService 创建执行状态机服务
// events 可为 nil (不发布事件);now 为 nil 时使用系统时钟
func NewExecutionService(
	db *gorm.DB,
	blobStore storage.BlobStore,
	auditLogSvc AuditLogService,
	events ExecutionEventPublisher,
) ExecutionService {
	return &executionService{
		db:          db,
		execRepo:    repository.NewExecutionRepository(db),
		routineRepo: repository.NewRoutineRepository(db),
		attachRepo:  repository.NewAttachmentRepository(db),
		blobStore:   blobStore,
		auditLogSvc: auditLogSvc,
		events:      events,
	}
}

// NewExecutionServiceWithClock 创建可注入时钟的执行状态机服务 (测试用)
func NewExecutionServiceWithClock(
	db *gorm.DB,
	blobStore storage.BlobStore,
	auditLogSvc AuditLogService,
	events ExecutionEventPublisher,
	now func() time.Time,
) ExecutionService {
	svc := NewExecutionService(db, blobStore, auditLogSvc, events).(*executionService)
	svc.now = now
	return svc
}

func (s *executionService) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// Start 创建或重入执行记录
// 同一 (任务, 执行人, 日期) 已存在未完成记录时幂等返回该记录;
// 否则对 daily normal 任务先做冲突准入,再在同一事务内创建执行记录
// 并按检查项模板实例化全部作答行 (全有或全无)
func (s *executionService) Start(ctx context.Context, req *StartExecutionRequest) (*model.ExecutionModel, error) {
	day := req.Day
	if day == "" {
		day = s.clock().Format("2006-01-02")
	}
	if _, err := time.ParseInLocation("2006-01-02", day, time.UTC); err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", day, err)
	}

	var result *model.ExecutionModel
	created := false

	// 冲突检查与创建必须在同一事务内,避免两次并发 start 同时通过准入
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 幂等重入: 已有未完成记录则直接返回
		var existing model.ExecutionModel
		err := tx.Where("routine_id = ? AND executor_id = ? AND day = ? AND finished_at IS NULL",
			req.RoutineID, req.ExecutorID, day).
			First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var routine model.RoutineModel
		if err := tx.Where("id = ?", req.RoutineID).First(&routine).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &engine.NotFoundError{Resource: "routine", ID: req.RoutineID}
			}
			return err
		}

		// 仅 daily normal 任务做时间窗冲突准入
		if routine.IsDailyNormal() {
			var peers []*model.RoutineModel
			if err := tx.Where("responsible_user_id = ? AND type = ? AND periodicity = ? AND id <> ?",
				routine.ResponsibleUserID, model.RoutineTypeNormal, model.PeriodicityDaily, routine.ID).
				Find(&peers).Error; err != nil {
				return err
			}
			if c := engine.FindConflict(routine.ResponsibleUserID, routine.StartTime, routine.DurationMinutes, peers); c != nil {
				return &engine.ConflictError{
					ResponsibleUserID:    routine.ResponsibleUserID,
					ConflictingRoutineID: c.ID,
				}
			}
		}

		now := s.clock()
		execution := &model.ExecutionModel{
			ID:             uuid.New().String(),
			RoutineID:      routine.ID,
			ExecutorID:     req.ExecutorID,
			Day:            day,
			State:          model.ExecutionStateRunning,
			StartedAt:      &now,
			ElapsedSeconds: 0,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(execution).Error; err != nil {
			return err
		}

		// 按检查项模板逐条实例化作答行
		var items []*model.ChecklistItemModel
		if err := tx.Where("routine_id = ?", routine.ID).Order("sort_order ASC").Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			answer := &model.ChecklistAnswerModel{
				ID:          uuid.New().String(),
				ExecutionID: execution.ID,
				ItemID:      item.ID,
				Completed:   false,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(answer).Error; err != nil {
				return err
			}
		}

		result = execution
		created = true
		return nil
	})
	if err != nil {
		var conflictErr *engine.ConflictError
		if errors.As(err, &conflictErr) {
			metrics.RecordExecutionConflict()
		}
		// 两次并发 start 同时通过存在性检查时,后插入的一方撞上
		// idx_executions_open 部分唯一索引: 幂等返回先创建的记录
		if repository.IsDuplicate(err) {
			if open, findErr := s.execRepo.FindOpen(req.RoutineID, req.ExecutorID, day); findErr == nil {
				return open, nil
			}
		}
		return nil, err
	}

	if created {
		metrics.RecordExecutionStarted()
		s.audit(ctx, result, "start", fmt.Sprintf(`{"execution_id":"%s","routine_id":"%s","day":"%s"}`, result.ID, result.RoutineID, result.Day))
		s.publish("execution.started", result)
	}

	return result, nil
}

// Get 获取执行记录详情
func (s *executionService) Get(id string) (*model.ExecutionModel, error) {
	execution, err := s.execRepo.FindByID(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &engine.NotFoundError{Resource: "execution", ID: id}
		}
		return nil, err
	}
	return execution, nil
}

// GetToday 查找某 (任务, 执行人, 日期) 的未完成执行记录
// 会话重连时调用,避免重复创建;不存在时返回 nil
func (s *executionService) GetToday(routineID string, executorID string, day string) (*model.ExecutionModel, error) {
	execution, err := s.execRepo.FindOpen(routineID, executorID, day)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return execution, nil
}

// Pause 暂停执行,仅 running 状态允许
func (s *executionService) Pause(ctx context.Context, id string) (*model.ExecutionModel, error) {
	execution, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !execution.IsRunning() {
		return nil, &engine.InvalidStateError{Operation: "pause", State: execution.CurrentState()}
	}

	now := s.clock()
	execution.PausedAt = &now
	execution.State = model.ExecutionStatePaused
	execution.UpdatedAt = now
	if err := s.execRepo.Save(execution); err != nil {
		return nil, err
	}

	s.audit(ctx, execution, "pause", fmt.Sprintf(`{"execution_id":"%s"}`, execution.ID))
	s.publish("execution.paused", execution)
	return execution, nil
}

// Resume 恢复执行,仅 paused 状态允许
func (s *executionService) Resume(ctx context.Context, id string) (*model.ExecutionModel, error) {
	execution, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !execution.IsPaused() {
		return nil, &engine.InvalidStateError{Operation: "resume", State: execution.CurrentState()}
	}

	execution.PausedAt = nil
	execution.State = model.ExecutionStateRunning
	execution.UpdatedAt = s.clock()
	if err := s.execRepo.Save(execution); err != nil {
		return nil, err
	}

	s.audit(ctx, execution, "resume", fmt.Sprintf(`{"execution_id":"%s"}`, execution.ID))
	s.publish("execution.resumed", execution)
	return execution, nil
}

// Tick 持久化计时心跳,累加已执行秒数
// 这是崩溃恢复的持久化检查点: 客户端按固定节奏调用,
// 崩溃最多丢失一个心跳间隔的计时
// 非 running 状态下为无副作用的空操作;finished 状态下报错
func (s *executionService) Tick(ctx context.Context, id string, deltaSeconds int64) (*model.ExecutionModel, error) {
	execution, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if execution.IsFinished() {
		return nil, &engine.InvalidStateError{Operation: "tick", State: execution.CurrentState()}
	}
	if !execution.IsRunning() || deltaSeconds <= 0 {
		// 冗余心跳安全: 暂停中或无增量时不做任何变更
		return execution, nil
	}

	execution.ElapsedSeconds += deltaSeconds
	execution.UpdatedAt = s.clock()
	if err := s.execRepo.Save(execution); err != nil {
		return nil, err
	}

	metrics.RecordTick()
	s.publish("execution.tick", execution)
	return execution, nil
}

// RecordAnswer 记录检查项作答 (upsert)
// 此处不做取值校验,校验统一推迟到 Finish 的完成门禁
func (s *executionService) RecordAnswer(ctx context.Context, id string, req *RecordAnswerRequest) (*model.ChecklistAnswerModel, error) {
	execution, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if execution.IsFinished() {
		return nil, &engine.InvalidStateError{Operation: "record_answer", State: execution.CurrentState()}
	}

	// 检查项必须属于该执行对应的任务
	item, err := s.findItem(execution.RoutineID, req.ItemID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	answer, err := s.execRepo.FindAnswer(execution.ID, item.ID)
	if err != nil {
		if !repository.IsNotFound(err) {
			return nil, err
		}
		answer = &model.ChecklistAnswerModel{
			ID:          uuid.New().String(),
			ExecutionID: execution.ID,
			ItemID:      item.ID,
			CreatedAt:   now,
		}
	}

	answer.Completed = req.Completed
	answer.NumericValue = req.NumericValue
	answer.TextValue = req.TextValue
	answer.UpdatedAt = now
	if err := s.execRepo.SaveAnswer(answer); err != nil {
		return nil, err
	}

	s.audit(ctx, execution, "record_answer", fmt.Sprintf(`{"execution_id":"%s","item_id":"%s","completed":%t}`, execution.ID, item.ID, req.Completed))
	return answer, nil
}

// Finish 完成执行
// 先评估完成门禁 (必填项完成、数值范围、文本非空、附件存在),
// 任一检查失败返回包含全部违规项的 ValidationError,执行记录保持原状;
// 全部通过则记录结项备注、置 finished 终态,冻结已执行秒数,此后不可变更
func (s *executionService) Finish(ctx context.Context, id string, req *FinishExecutionRequest) (*model.ExecutionModel, error) {
	execution, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if execution.IsFinished() {
		return nil, &engine.InvalidStateError{Operation: "finish", State: execution.CurrentState()}
	}

	violations, err := s.evaluateFinishGate(execution)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		metrics.RecordFinishGateFailure()
		return nil, &engine.ValidationError{Violations: violations}
	}

	now := s.clock()
	if req != nil && strings.TrimSpace(req.Notes) != "" {
		execution.Notes = strings.TrimSpace(req.Notes)
	}
	execution.FinishedAt = &now
	execution.PausedAt = nil
	execution.State = model.ExecutionStateFinished
	execution.UpdatedAt = now
	if err := s.execRepo.Save(execution); err != nil {
		return nil, err
	}

	metrics.RecordExecutionFinished()
	s.audit(ctx, execution, "finish", fmt.Sprintf(`{"execution_id":"%s","elapsed_seconds":%d}`, execution.ID, execution.ElapsedSeconds))
	s.publish("execution.finished", execution)
	return execution, nil
}

// Attach 上传附件: 内容写入 blob 存储,引擎只保存引用
func (s *executionService) Attach(ctx context.Context, id string, req *AttachRequest) (*model.AttachmentModel, error) {
	execution, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if execution.IsFinished() {
		return nil, &engine.InvalidStateError{Operation: "attach", State: execution.CurrentState()}
	}

	reference, err := s.blobStore.Put(req.Filename, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	attachment := &model.AttachmentModel{
		ID:          uuid.New().String(),
		RoutineID:   execution.RoutineID,
		ExecutionID: &execution.ID,
		Reference:   reference,
		Description: req.Description,
		UploadedBy:  req.UploadedBy,
		CreatedAt:   s.clock(),
	}
	if err := s.attachRepo.Save(attachment); err != nil {
		return nil, err
	}

	s.audit(ctx, execution, "attach", fmt.Sprintf(`{"execution_id":"%s","attachment_id":"%s","reference":"%s"}`, execution.ID, attachment.ID, reference))
	return attachment, nil
}

// ListAnswers 查看执行记录的全部作答
func (s *executionService) ListAnswers(id string) ([]*model.ChecklistAnswerModel, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return s.execRepo.FindAnswers(id)
}

// ListAttachments 查看执行记录的全部附件
func (s *executionService) ListAttachments(id string) ([]*model.AttachmentModel, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return s.attachRepo.FindByExecution(id)
}

// evaluateFinishGate 评估完成门禁,返回全部违规项 (而非只报首个)
func (s *executionService) evaluateFinishGate(execution *model.ExecutionModel) ([]engine.ItemViolation, error) {
	routine, err := s.routineRepo.FindByID(execution.RoutineID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, &engine.NotFoundError{Resource: "routine", ID: execution.RoutineID}
		}
		return nil, err
	}

	items, err := s.routineRepo.FindChecklistItems(routine.ID)
	if err != nil {
		return nil, err
	}
	answers, err := s.execRepo.FindAnswers(execution.ID)
	if err != nil {
		return nil, err
	}
	answerByItem := make(map[string]*model.ChecklistAnswerModel, len(answers))
	for _, a := range answers {
		answerByItem[a.ItemID] = a
	}

	var violations []engine.ItemViolation
	itemAttachmentRequired := false

	for _, item := range items {
		if item.RequiresAttachment {
			itemAttachmentRequired = true
		}
		if !item.Required {
			continue
		}

		answer := answerByItem[item.ID]
		if answer == nil || !answer.Completed {
			violations = append(violations, engine.ItemViolation{
				ItemID:      item.ID,
				Description: item.Description,
				Reason:      "required item is not completed",
			})
			continue
		}

		switch item.ValueType {
		case model.ValueTypeNumeric:
			if answer.NumericValue == nil {
				violations = append(violations, engine.ItemViolation{
					ItemID:      item.ID,
					Description: item.Description,
					Reason:      "numeric value is required",
				})
				continue
			}
			v := *answer.NumericValue
			if item.MinValue != nil && v < *item.MinValue {
				violations = append(violations, engine.ItemViolation{
					ItemID:      item.ID,
					Description: item.Description,
					Reason:      fmt.Sprintf("value %g is below minimum %g", v, *item.MinValue),
				})
			} else if item.MaxValue != nil && v > *item.MaxValue {
				violations = append(violations, engine.ItemViolation{
					ItemID:      item.ID,
					Description: item.Description,
					Reason:      fmt.Sprintf("value %g is above maximum %g", v, *item.MaxValue),
				})
			}
		case model.ValueTypeText:
			if answer.TextValue == nil || strings.TrimSpace(*answer.TextValue) == "" {
				violations = append(violations, engine.ItemViolation{
					ItemID:      item.ID,
					Description: item.Description,
					Reason:      "text value is required",
				})
			}
		}
	}

	// 任务级或检查项级要求附件时,至少存在一个附件
	if routine.RequiresAttachment || itemAttachmentRequired {
		count, err := s.attachRepo.CountByExecution(execution.ID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			violations = append(violations, engine.ItemViolation{
				Reason: "at least one attachment is required",
			})
		}
	}

	return violations, nil
}

// findItem 查找检查项模板并确认归属
func (s *executionService) findItem(routineID string, itemID string) (*model.ChecklistItemModel, error) {
	var item model.ChecklistItemModel
	if err := s.db.Where("id = ?", itemID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &engine.NotFoundError{Resource: "checklist item", ID: itemID}
		}
		return nil, err
	}
	if item.RoutineID != routineID {
		return nil, &engine.NotFoundError{Resource: "checklist item", ID: itemID}
	}
	return &item, nil
}

func (s *executionService) audit(ctx context.Context, execution *model.ExecutionModel, action string, details string) {
	if s.auditLogSvc == nil {
		return
	}
	userID := getUserIDFromContext(ctx)
	if userID == "" {
		userID = execution.ExecutorID
	}
	_ = s.auditLogSvc.RecordAction(ctx, userID, action, "execution", execution.ID, details)
}

func (s *executionService) publish(eventType string, execution *model.ExecutionModel) {
	if s.events == nil {
		return
	}
	s.events.PublishExecutionEvent(eventType, execution)
}

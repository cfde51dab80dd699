package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/routine-gin/internal/service"
	"github.com/mautops/routine-gin/internal/utils"
)

// ExecutionController 执行记录控制器
// 暴露执行状态机的全部操作: 启动、暂停/恢复、心跳、作答、完成、附件
type ExecutionController struct {
	executionService service.ExecutionService
}

// NewExecutionController 创建执行记录控制器
func NewExecutionController(executionService service.ExecutionService) *ExecutionController {
	return &ExecutionController{
		executionService: executionService,
	}
}

// validateExecutionID 验证执行记录 ID 并返回错误响应（如果无效）
func (c *ExecutionController) validateExecutionID(ctx *gin.Context, id string) bool {
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid execution ID", err.Error())
		return false
	}
	return true
}

// Start 启动执行
// @Summary      启动执行
// @Description  为 (任务, 执行人, 日期) 创建执行记录;已有未完成记录时幂等返回
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        request body service.StartExecutionRequest true "启动参数"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /executions [post]
func (c *ExecutionController) Start(ctx *gin.Context) {
	var req service.StartExecutionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	execution, err := c.executionService.Start(ctx.Request.Context(), &req)
	if err != nil {
		EngineError(ctx, err, "start execution")
		return
	}

	Success(ctx, execution)
}

// Get 获取执行记录
// @Summary      获取执行记录详情
// @Description  根据 ID 获取执行记录
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /executions/{id} [get]
func (c *ExecutionController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	execution, err := c.executionService.Get(id)
	if err != nil {
		EngineError(ctx, err, "get execution")
		return
	}

	Success(ctx, execution)
}

// GetToday 查找未完成执行记录
// @Summary      查找未完成执行记录
// @Description  按 (任务, 执行人, 日期) 查找未完成的执行记录,用于会话重连
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        routine_id query string true "任务 ID"
// @Param        executor_id query string true "执行人 ID"
// @Param        day query string true "日期 YYYY-MM-DD"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /executions/open [get]
func (c *ExecutionController) GetToday(ctx *gin.Context) {
	routineID := ctx.Query("routine_id")
	executorID := ctx.Query("executor_id")
	day := ctx.Query("day")
	if routineID == "" || executorID == "" || day == "" {
		Error(ctx, http.StatusBadRequest, "invalid request", "routine_id, executor_id and day are required")
		return
	}

	execution, err := c.executionService.GetToday(routineID, executorID, day)
	if err != nil {
		EngineError(ctx, err, "find open execution")
		return
	}

	Success(ctx, execution)
}

// Pause 暂停执行
// @Summary      暂停执行
// @Description  暂停运行中的执行,计时停止累加
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /executions/{id}/pause [post]
func (c *ExecutionController) Pause(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	execution, err := c.executionService.Pause(ctx.Request.Context(), id)
	if err != nil {
		EngineError(ctx, err, "pause execution")
		return
	}

	Success(ctx, execution)
}

// Resume 恢复执行
// @Summary      恢复执行
// @Description  恢复已暂停的执行,计时继续累加
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /executions/{id}/resume [post]
func (c *ExecutionController) Resume(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	execution, err := c.executionService.Resume(ctx.Request.Context(), id)
	if err != nil {
		EngineError(ctx, err, "resume execution")
		return
	}

	Success(ctx, execution)
}

// Tick 计时心跳
// @Summary      计时心跳
// @Description  累加已执行秒数,作为崩溃恢复的持久化检查点
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Param        delta_seconds query int true "自上次心跳以来的秒数增量"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /executions/{id}/tick [post]
func (c *ExecutionController) Tick(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	delta, err := strconv.ParseInt(ctx.DefaultQuery("delta_seconds", "0"), 10, 64)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid delta_seconds", err.Error())
		return
	}

	execution, err := c.executionService.Tick(ctx.Request.Context(), id, delta)
	if err != nil {
		EngineError(ctx, err, "tick execution")
		return
	}

	Success(ctx, execution)
}

// RecordAnswer 记录检查项作答
// @Summary      记录检查项作答
// @Description  记录或更新某检查项的作答,取值校验推迟到完成门禁
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Param        request body service.RecordAnswerRequest true "作答内容"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /executions/{id}/answers [post]
func (c *ExecutionController) RecordAnswer(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	var req service.RecordAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	answer, err := c.executionService.RecordAnswer(ctx.Request.Context(), id, &req)
	if err != nil {
		EngineError(ctx, err, "record answer")
		return
	}

	Success(ctx, answer)
}

// Finish 完成执行
// @Summary      完成执行
// @Description  评估完成门禁;任一检查失败返回含全部违规项的 422;请求体可选,携带结项备注
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Param        request body service.FinishExecutionRequest false "结项备注"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /executions/{id}/finish [post]
func (c *ExecutionController) Finish(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	// 请求体可选: 无体时按不带备注完成
	var req service.FinishExecutionRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}

	execution, err := c.executionService.Finish(ctx.Request.Context(), id, &req)
	if err != nil {
		EngineError(ctx, err, "finish execution")
		return
	}

	Success(ctx, execution)
}

// Attach 上传附件
// @Summary      上传附件
// @Description  保存附件内容到 blob 存储并在执行记录上登记引用
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Param        request body service.AttachRequest true "附件内容"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /executions/{id}/attachments [post]
func (c *ExecutionController) Attach(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	var req service.AttachRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	attachment, err := c.executionService.Attach(ctx.Request.Context(), id, &req)
	if err != nil {
		EngineError(ctx, err, "attach file")
		return
	}

	Success(ctx, attachment)
}

// ListAnswers 列出作答
// @Summary      列出检查项作答
// @Description  列出执行记录的全部检查项作答
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /executions/{id}/answers [get]
func (c *ExecutionController) ListAnswers(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	answers, err := c.executionService.ListAnswers(id)
	if err != nil {
		EngineError(ctx, err, "list answers")
		return
	}

	Success(ctx, answers)
}

// ListAttachments 列出附件
// @Summary      列出附件
// @Description  列出执行记录的全部附件引用
// @Tags         执行管理
// @Accept       json
// @Produce      json
// @Param        id path string true "执行记录 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /executions/{id}/attachments [get]
func (c *ExecutionController) ListAttachments(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateExecutionID(ctx, id) {
		return
	}

	attachments, err := c.executionService.ListAttachments(id)
	if err != nil {
		EngineError(ctx, err, "list attachments")
		return
	}

	Success(ctx, attachments)
}

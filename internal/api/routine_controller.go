package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/routine-gin/internal/repository"
	"github.com/mautops/routine-gin/internal/service"
	"github.com/mautops/routine-gin/internal/utils"
)

// RoutineController 例行任务控制器
type RoutineController struct {
	routineService service.RoutineService
}

// NewRoutineController 创建例行任务控制器
func NewRoutineController(routineService service.RoutineService) *RoutineController {
	return &RoutineController{
		routineService: routineService,
	}
}

// validateRoutineID 验证任务 ID 并返回错误响应（如果无效）
func (c *RoutineController) validateRoutineID(ctx *gin.Context, id string) bool {
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid routine ID", err.Error())
		return false
	}
	return true
}

// Create 创建例行任务
// @Summary      创建例行任务
// @Description  创建例行任务及其检查项模板
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateRoutineRequest true "任务信息"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /routines [post]
func (c *RoutineController) Create(ctx *gin.Context) {
	var req service.CreateRoutineRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	detail, err := c.routineService.Create(ctx.Request.Context(), &req)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "failed to create routine", err.Error())
		return
	}

	Success(ctx, detail)
}

// Get 获取例行任务
// @Summary      获取任务详情
// @Description  根据 ID 获取例行任务及其检查项模板
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /routines/{id} [get]
func (c *RoutineController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateRoutineID(ctx, id) {
		return
	}

	detail, err := c.routineService.Get(id)
	if err != nil {
		EngineError(ctx, err, "get routine")
		return
	}

	Success(ctx, detail)
}

// List 列出例行任务
// @Summary      列出例行任务
// @Description  按负责人/部门/分区/大区/类型/周期过滤列出任务
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        responsible_user_id query string false "负责人 ID"
// @Param        department_id query string false "部门 ID"
// @Param        sector_id query string false "分区 ID"
// @Param        region_id query string false "大区 ID"
// @Param        type query string false "任务类型 (normal/adhoc)"
// @Param        periodicity query string false "周期 (daily/weekly/monthly)"
// @Success      200  {object}  Response
// @Failure      500  {object}  ErrorResponse
// @Router       /routines [get]
func (c *RoutineController) List(ctx *gin.Context) {
	filter := &repository.RoutineFilter{}
	if v := ctx.Query("responsible_user_id"); v != "" {
		filter.ResponsibleUserID = &v
	}
	if v := ctx.Query("department_id"); v != "" {
		filter.DepartmentID = &v
	}
	if v := ctx.Query("sector_id"); v != "" {
		filter.SectorID = &v
	}
	if v := ctx.Query("region_id"); v != "" {
		filter.RegionID = &v
	}
	if v := ctx.Query("type"); v != "" {
		filter.Type = &v
	}
	if v := ctx.Query("periodicity"); v != "" {
		filter.Periodicity = &v
	}

	routines, err := c.routineService.List(filter)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to list routines", err.Error())
		return
	}

	Success(ctx, routines)
}

// Occurrences 统计计划发生次数
// @Summary      统计计划发生次数
// @Description  统计任务在 [from, to] 闭区间内按周期规则的计划发生次数
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        id path string true "任务 ID"
// @Param        from query string true "起始日期 YYYY-MM-DD"
// @Param        to query string true "结束日期 YYYY-MM-DD"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /routines/{id}/occurrences [get]
func (c *RoutineController) Occurrences(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateRoutineID(ctx, id) {
		return
	}

	from, err := time.ParseInLocation("2006-01-02", ctx.Query("from"), time.UTC)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid from date", err.Error())
		return
	}
	to, err := time.ParseInLocation("2006-01-02", ctx.Query("to"), time.UTC)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid to date", err.Error())
		return
	}

	count, err := c.routineService.Occurrences(id, from, to)
	if err != nil {
		EngineError(ctx, err, "count occurrences")
		return
	}

	Success(ctx, gin.H{
		"routine_id": id,
		"from":       from.Format("2006-01-02"),
		"to":         to.Format("2006-01-02"),
		"count":      count,
	})
}

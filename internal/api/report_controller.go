package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/routine-gin/internal/service"
)

// ReportController 统计报表控制器
type ReportController struct {
	reportService service.ReportService
}

// NewReportController 创建统计报表控制器
func NewReportController(reportService service.ReportService) *ReportController {
	return &ReportController{
		reportService: reportService,
	}
}

// PlannedVsExecuted 计划/实际对比
// @Summary      计划/实际执行对比
// @Description  按执行人/分区/大区维度汇总窗口内的计划次数、实际次数与完成率,按完成率降序
// @Tags         统计报表
// @Accept       json
// @Produce      json
// @Param        dimension query string true "聚合维度 (executor/sector/region)"
// @Param        id query string false "只看某一个范围键"
// @Param        from query string true "窗口起始日期 YYYY-MM-DD"
// @Param        to query string true "窗口结束日期 YYYY-MM-DD"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /reports/planned-vs-executed [get]
func (c *ReportController) PlannedVsExecuted(ctx *gin.Context) {
	filter := &service.ScopeFilter{
		Dimension: ctx.Query("dimension"),
	}
	if v := ctx.Query("id"); v != "" {
		filter.ID = &v
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
	if to.Before(from) {
		Error(ctx, http.StatusBadRequest, "invalid window", "to must not be before from")
		return
	}

	rows, err := c.reportService.PlannedVsExecuted(filter, from, to)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "failed to aggregate", err.Error())
		return
	}

	Success(ctx, gin.H{
		"dimension": filter.Dimension,
		"from":      from.Format("2006-01-02"),
		"to":        to.Format("2006-01-02"),
		"rows":      rows,
	})
}

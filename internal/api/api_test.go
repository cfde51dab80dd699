package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/routine-gin/internal/api"
	"github.com/mautops/routine-gin/internal/config"
	"github.com/mautops/routine-gin/internal/model"
	"github.com/mautops/routine-gin/internal/service"
	"github.com/mautops/routine-gin/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestRouter 构建带 sqlite 内存库的完整路由
func setupTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.RoutineModel{},
		&model.ChecklistItemModel{},
		&model.ExecutionModel{},
		&model.ChecklistAnswerModel{},
		&model.AttachmentModel{},
		&model.AuditLogModel{},
	))

	blobStore := storage.NewLocalBlobStore(t.TempDir())
	routineSvc := service.NewRoutineService(db, nil)
	executionSvc := service.NewExecutionService(db, blobStore, nil, nil)
	reportSvc := service.NewReportService(db)

	routineController := api.NewRoutineController(routineSvc)
	executionController := api.NewExecutionController(executionSvc)
	reportController := api.NewReportController(reportSvc)

	router := api.SetupRoutes(config.Default(), nil, db)
	v1 := router.Group("/api/v1")
	{
		routines := v1.Group("/routines")
		{
			routines.POST("", routineController.Create)
			routines.GET("", routineController.List)
			routines.GET("/:id", routineController.Get)
			routines.GET("/:id/occurrences", routineController.Occurrences)
		}
		executions := v1.Group("/executions")
		{
			executions.GET("/open", executionController.GetToday)
			executions.POST("", executionController.Start)
			executions.GET("/:id", executionController.Get)
			executions.POST("/:id/pause", executionController.Pause)
			executions.POST("/:id/resume", executionController.Resume)
			executions.POST("/:id/tick", executionController.Tick)
			executions.POST("/:id/finish", executionController.Finish)
			executions.POST("/:id/answers", executionController.RecordAnswer)
			executions.GET("/:id/answers", executionController.ListAnswers)
			executions.POST("/:id/attachments", executionController.Attach)
			executions.GET("/:id/attachments", executionController.ListAttachments)
		}
		reports := v1.Group("/reports")
		{
			reports.GET("/planned-vs-executed", reportController.PlannedVsExecuted)
		}
	}

	return router, db
}

// doJSON 发起 JSON 请求并解析统一响应
func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// createRoutine 通过 API 创建任务并返回 ID
func createRoutine(t *testing.T, router *gin.Engine, body map[string]interface{}) string {
	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/routines", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	routine := data["routine"].(map[string]interface{})
	return routine["ID"].(string)
}

func normalRoutineBody(user string, startTime string, duration int) map[string]interface{} {
	body := map[string]interface{}{
		"title":               "机房巡检",
		"type":                "normal",
		"periodicity":         "daily",
		"start_date":          "2025-06-01",
		"duration_minutes":    duration,
		"urgency":             "medium",
		"responsible_user_id": user,
	}
	if startTime != "" {
		body["start_time"] = startTime
	}
	return body
}

// TestAPI_RoutineLifecycle 创建/查询/发生次数
func TestAPI_RoutineLifecycle(t *testing.T) {
	router, _ := setupTestRouter(t)

	id := createRoutine(t, router, normalRoutineBody("user-001", "08:00", 30))

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/routines/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), resp["code"])

	w, resp = doJSON(t, router, http.MethodGet, "/api/v1/routines/"+id+"/occurrences?from=2025-06-01&to=2025-06-07", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(7), data["count"])
}

// TestAPI_RoutineNotFound 未知任务返回 404
func TestAPI_RoutineNotFound(t *testing.T) {
	router, _ := setupTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/routines/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, resp["message"], "not found")
}

// TestAPI_InvalidID 非法 ID 返回 400
func TestAPI_InvalidID(t *testing.T) {
	router, _ := setupTestRouter(t)

	w, _ := doJSON(t, router, http.MethodGet, "/api/v1/routines/bad%20id!", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestAPI_ExecutionStateMachine 执行生命周期与冲突准入
func TestAPI_ExecutionStateMachine(t *testing.T) {
	router, _ := setupTestRouter(t)

	first := createRoutine(t, router, normalRoutineBody("user-001", "08:00", 60))
	second := createRoutine(t, router, normalRoutineBody("user-001", "08:30", 30))

	// 启动第一个任务
	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"routine_id":  first,
		"executor_id": "user-001",
		"day":         "2025-06-02",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	execution := resp["data"].(map[string]interface{})
	execID := execution["ID"].(string)

	// 时间窗重叠的第二个任务被拒
	w, resp = doJSON(t, router, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"routine_id":  second,
		"executor_id": "user-001",
		"day":         "2025-06-02",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "time window conflict", resp["message"])

	// 暂停/恢复/心跳
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/executions/"+execID+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/executions/"+execID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "pause while paused is an invalid transition")

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/executions/"+execID+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/executions/%s/tick?delta_seconds=30", execID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	ticked := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(30), ticked["ElapsedSeconds"])

	// 完成,携带结项备注
	w, resp = doJSON(t, router, http.MethodPost, "/api/v1/executions/"+execID+"/finish", map[string]interface{}{
		"notes": "巡检完成",
	})
	require.Equal(t, http.StatusOK, w.Code)
	finished := resp["data"].(map[string]interface{})
	assert.Equal(t, "巡检完成", finished["Notes"])

	// 终态后再操作返回 409
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/executions/"+execID+"/finish", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

// TestAPI_FinishGate 完成门禁违规返回 422 与全部违规项
func TestAPI_FinishGate(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := normalRoutineBody("user-001", "", 30)
	body["checklist"] = []map[string]interface{}{
		{"sort_order": 1, "description": "检查温度", "required": true, "value_type": "numeric", "min_value": 0, "max_value": 40},
		{"sort_order": 2, "description": "记录备注", "required": true, "value_type": "text"},
	}
	id := createRoutine(t, router, body)

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"routine_id":  id,
		"executor_id": "user-001",
		"day":         "2025-06-02",
	})
	require.Equal(t, http.StatusOK, w.Code)
	execID := resp["data"].(map[string]interface{})["ID"].(string)

	w, resp = doJSON(t, router, http.MethodPost, "/api/v1/executions/"+execID+"/finish", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "finish gate validation failed", resp["message"])
}

// TestAPI_Report 计划/实际对比接口
func TestAPI_Report(t *testing.T) {
	router, _ := setupTestRouter(t)

	id := createRoutine(t, router, normalRoutineBody("user-001", "", 30))
	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"routine_id":  id,
		"executor_id": "user-001",
		"day":         "2025-06-02",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := doJSON(t, router, http.MethodGet,
		"/api/v1/reports/planned-vs-executed?dimension=executor&from=2025-06-01&to=2025-06-07", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	rows := data["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "user-001", row["scope_key"])

	// 未知维度返回 400
	w, _ = doJSON(t, router, http.MethodGet,
		"/api/v1/reports/planned-vs-executed?dimension=department&from=2025-06-01&to=2025-06-07", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestAPI_RequestID 请求 ID 透传与生成
func TestAPI_RequestID(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

// TestAPI_NoRoute 未知路由返回 JSON 404
func TestAPI_NoRoute(t *testing.T) {
	router, _ := setupTestRouter(t)

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route not found", resp["message"])
}

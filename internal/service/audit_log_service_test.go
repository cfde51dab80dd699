package service_test

import (
	"context"
	"testing"

	"github.com/mautops/routine-gin/internal/repository"
	"github.com/mautops/routine-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuditLog_RecordExecutionStart 测试记录执行启动审计日志
func TestAuditLog_RecordExecutionStart(t *testing.T) {
	db := setupTestDB(t)
	auditRepo := repository.NewAuditLogRepository(db)
	auditService := service.NewAuditLogService(auditRepo)

	ctx := context.Background()
	err := auditService.RecordAction(ctx, "user-001", "start", "execution", "exe-001", "started execution")
	require.NoError(t, err)

	logs, err := auditRepo.FindByUserID("user-001")
	require.NoError(t, err)
	assert.Len(t, logs, 1, "should have one audit log")
	assert.Equal(t, "start", logs[0].Action)
	assert.Equal(t, "execution", logs[0].ResourceType)
	assert.Equal(t, "exe-001", logs[0].ResourceID)
}

// TestAuditLog_FindByResource 按资源查找审计轨迹
func TestAuditLog_FindByResource(t *testing.T) {
	db := setupTestDB(t)
	auditRepo := repository.NewAuditLogRepository(db)
	auditService := service.NewAuditLogService(auditRepo)

	ctx := context.Background()
	for _, action := range []string{"start", "pause", "resume", "finish"} {
		require.NoError(t, auditService.RecordAction(ctx, "user-001", action, "execution", "exe-001", nil))
	}
	require.NoError(t, auditService.RecordAction(ctx, "user-002", "create", "routine", "rtn-001", nil))

	logs, err := auditRepo.FindByResource("execution", "exe-001")
	require.NoError(t, err)
	assert.Len(t, logs, 4)

	logs, err = auditRepo.FindByResource("routine", "rtn-001")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, "create", logs[0].Action)
}

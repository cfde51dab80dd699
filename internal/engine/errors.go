package engine

import (
	"fmt"
	"strings"
)

// 引擎错误分类,全部可由调用方恢复:
// 冲突、状态非法、完成门禁校验失败、资源不存在
// 所有变更操作都是全有或全无,失败不会破坏已持久化状态

// ConflictError 日常任务时间窗冲突,拒绝创建执行记录
type ConflictError struct {
	ResponsibleUserID    string
	ConflictingRoutineID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time window conflict with routine %s for user %s", e.ConflictingRoutineID, e.ResponsibleUserID)
}

// InvalidStateError 当前状态不允许该操作
type InvalidStateError struct {
	Operation string
	State     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("operation %s not allowed in state %s", e.Operation, e.State)
}

// ItemViolation 单个检查项的校验失败
type ItemViolation struct {
	ItemID      string `json:"item_id"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// ValidationError 完成门禁校验失败,包含全部未通过的检查项
type ValidationError struct {
	Violations []ItemViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	reasons := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.ItemID == "" {
			reasons = append(reasons, v.Reason)
			continue
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", v.ItemID, v.Reason))
	}
	return "validation failed: " + strings.Join(reasons, "; ")
}

// NotFoundError 引用的资源不存在
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

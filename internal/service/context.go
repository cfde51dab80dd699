package service

import "context"

// stringFromContext 从上下文中读取字符串值,缺失或类型不符时返回空串
func stringFromContext(ctx context.Context, key string) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getUserIDFromContext 获取当前用户 ID (由请求中间件写入)
func getUserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, "user_id")
}

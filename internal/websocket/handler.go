package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查 Origin
		return true
	},
}

// WebSocketHandler WebSocket 处理器
// 订阅执行状态事件;executor_id 可选,用于按执行人过滤定向消息
func WebSocketHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		executorID := c.Query("executor_id")

		// 升级连接
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
			return
		}

		// 创建并注册客户端
		client := NewClient(
			uuid.New().String(),
			executorID,
			hub,
			conn,
		)
		hub.Register <- client

		// 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}

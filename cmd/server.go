/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/routine-gin/internal/api"
	"github.com/mautops/routine-gin/internal/config"
	"github.com/mautops/routine-gin/internal/container"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Routine Gin API server.
The server will listen on the configured host and port,
and provide REST API interfaces for routine scheduling and execution tracking.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 3. 启动 WebSocket hub
		go ctr.Hub().Run()

		// 4. 初始化控制器
		routineController := api.NewRoutineController(ctr.RoutineService())
		executionController := api.NewExecutionController(ctr.ExecutionService())
		reportController := api.NewReportController(ctr.ReportService())

		// 5. 设置路由
		router := setupRoutesWithControllers(cfg, ctr, routineController, executionController, reportController)

		// 6. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		// 启动服务器（在 goroutine 中）
		go func() {
			log.Printf("Server starting on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down server...")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		log.Println("Server exited")
		return nil
	},
}

// setupRoutesWithControllers 设置路由并绑定控制器
func setupRoutesWithControllers(
	cfg *config.Config,
	ctr *container.Container,
	routineController *api.RoutineController,
	executionController *api.ExecutionController,
	reportController *api.ReportController,
) *gin.Engine {
	router := api.SetupRoutes(cfg, ctr.Hub(), ctr.DB())

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// 例行任务路由
		routines := v1.Group("/routines")
		{
			routines.POST("", routineController.Create)
			routines.GET("", routineController.List)
			routines.GET("/:id", routineController.Get)
			routines.GET("/:id/occurrences", routineController.Occurrences)
		}

		// 执行记录路由
		executions := v1.Group("/executions")
		{
			// 固定路径路由（必须在 /:id 之前注册）
			executions.GET("/open", executionController.GetToday)

			// 基础路由
			executions.POST("", executionController.Start)
			executions.GET("/:id", executionController.Get)

			// 状态机操作路由
			executions.POST("/:id/pause", executionController.Pause)
			executions.POST("/:id/resume", executionController.Resume)
			executions.POST("/:id/tick", executionController.Tick)
			executions.POST("/:id/finish", executionController.Finish)

			// 作答与附件路由
			executions.POST("/:id/answers", executionController.RecordAnswer)
			executions.GET("/:id/answers", executionController.ListAnswers)
			executions.POST("/:id/attachments", executionController.Attach)
			executions.GET("/:id/attachments", executionController.ListAttachments)
		}

		// 统计报表路由
		reports := v1.Group("/reports")
		{
			reports.GET("/planned-vs-executed", reportController.PlannedVsExecuted)
		}
	}

	return router
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}

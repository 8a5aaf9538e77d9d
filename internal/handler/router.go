package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
// 鉴权由网关负责，这里不做校验
func SetupRouter(h *Handler, mode string) *gin.Engine {
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		balance := api.Group("/balance")
		{
			balance.GET("", h.GetBalance)
			balance.GET("/logs", h.ListLogs)
			balance.GET("/logs/:txn_no", h.GetLog)
			balance.POST("/recharge", h.Recharge)
			balance.POST("/consume", h.Consume)
			balance.POST("/refund", h.Refund)
		}

		api.GET("/promos/preview", h.PreviewPromo)

		admin := api.Group("/admin")
		{
			adminBalance := admin.Group("/balance")
			{
				adminBalance.POST("/adjust", h.Adjust)
				adminBalance.POST("/reward", h.Reward)
				adminBalance.POST("/freeze", h.Freeze)
				adminBalance.POST("/unfreeze", h.Unfreeze)
				adminBalance.GET("/audit", h.Audit)
				adminBalance.GET("/config", h.GetConfig)
				adminBalance.PUT("/config", h.UpdateConfig)
			}

			promos := admin.Group("/promos")
			{
				promos.GET("", h.ListPromos)
				promos.POST("", h.CreatePromo)
				promos.GET("/:id", h.GetPromo)
				promos.PUT("/:id", h.UpdatePromo)
				promos.POST("/:id/status", h.SetPromoStatus)
				promos.GET("/:id/usages", h.ListPromoUsages)
			}
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

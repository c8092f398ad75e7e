// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coldnet-server/internal/cache"
	"coldnet-server/internal/middleware"
	"coldnet-server/pkg/jwt"
)

// RegisterRoutes 注册所有路由
// 除注册和换取 Token 外的接口都需要 Bearer Token 认证
func RegisterRoutes(
	router *gin.Engine,
	jwtService *jwt.JWTService,
	redisCache *cache.RedisCache,
	authHandler *AuthHandler,
	userHandler *UserHandler,
	chatHandler *ChatHandler,
	speechHandler *SpeechHandler,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	// 认证相关（无需登录）
	api.POST("/register", authHandler.Register)
	api.POST("/token", authHandler.Token)

	// 以下接口需要登录
	authorized := api.Group("")
	authorized.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		authorized.POST("/logout", authHandler.Logout)

		// 用户资料
		authorized.GET("/profile", userHandler.GetProfile)
		authorized.PUT("/profile", userHandler.UpdateProfile)
		authorized.PUT("/profile/password", userHandler.ChangePassword)

		// 聊天
		authorized.GET("/chats", chatHandler.ListChats)
		authorized.POST("/chats", chatHandler.CreateChat)
		authorized.GET("/chats/:id", chatHandler.GetChat)
		authorized.PUT("/chats/:id", chatHandler.UpdateChat)
		authorized.DELETE("/chats/:id", chatHandler.DeleteChat)
		authorized.POST("/chats/:id/messages", chatHandler.PostMessage)
		authorized.POST("/chats/:id/messages/stream-audio", chatHandler.StreamAudioReply)
		authorized.POST("/chats/:id/sync", chatHandler.SyncHistory)

		// 语音与图像
		authorized.POST("/stt/transcribe", speechHandler.Transcribe)
		authorized.POST("/tts/synthesize", speechHandler.Synthesize)
		authorized.POST("/describe-image", speechHandler.DescribeImage)
	}
}

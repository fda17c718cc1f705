package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes(authMiddleware echo.MiddlewareFunc) {
	e := s.Echo

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	// Auth routes (unprotected)
	auth := api.Group("/auth")
	{
		auth.POST("/register", s.AuthHandler.Register)
		auth.POST("/login", s.AuthHandler.Login)
		auth.POST("/refresh", s.AuthHandler.RefreshToken)
	}
	// 需要认证
	protected := api.Group("")
	protected.Use(authMiddleware)
	{
		// User routes
		protected.GET("/user", s.AuthHandler.GetCurrentUser)
		// Chat routes
		chat := protected.Group("/chat")
		{
			chat.GET("/:conversationId/messages", s.ChatHandler.GetMessages) // 获取历史消息
			chat.GET("/friends/online", s.ChatHandler.GetOnlineFriends)      // 获取在线好友
		}
		// 单连接多路复用，进入后通过 join_conversation 事件订阅具体会话
		protected.GET("/ws", s.SocketHandler.HandleWebSocket)
	}
}

// internal/app/router.go
package app

import (
	authHandler "simcomps-service/internal/handlers/auth"
	userHandler "simcomps-service/internal/handlers/user"
	wsHandler "simcomps-service/internal/handlers/websocket"
	"simcomps-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	UserHandler    *userHandler.UserHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.AuthMiddleware.RequireAuth(), h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/register", h.AuthHandler.Register)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.RequireAuth())
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.POST("/logout-all", h.AuthHandler.LogoutAll)
		authProtected.GET("/me", h.AuthHandler.GetMe)
		authProtected.GET("/sessions", h.AuthHandler.GetActiveSessions)
		authProtected.DELETE("/sessions/:token", h.AuthHandler.RevokeSession)
	}

	// ==================== User Management (admin) ====================
	users := api.Group("/users")
	users.Use(h.AuthMiddleware.RequireAdmin())
	{
		users.GET("", h.UserHandler.ListUsers)
		users.GET("/:id", h.UserHandler.GetUser)
		users.PUT("/:id/lock", h.UserHandler.SetLock)
		users.PUT("/:id/permission", h.UserHandler.UpdatePermission)
		users.DELETE("/:id", h.UserHandler.DeleteUser)
	}

	// ==================== Presence (admin) ====================
	presenceRoutes := api.Group("/presence")
	presenceRoutes.Use(h.AuthMiddleware.RequireAdmin())
	{
		presenceRoutes.GET("", h.UserHandler.ListOnline)
		presenceRoutes.GET("/stats", h.UserHandler.PresenceStats)
		presenceRoutes.POST("/reconcile", h.UserHandler.ReconcilePresence)
		presenceRoutes.DELETE("", h.UserHandler.ClearPresence)
	}
}

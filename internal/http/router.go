package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(s *Server, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), loopbackOnly())

	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	api := r.Group("/api")
	{
		api.GET("/health", s.Health)
		api.GET("/chains", s.Chains)

		api.GET("/session", s.SessionStatus)
		api.DELETE("/session", s.SessionDisconnect)
		api.POST("/session/observe", s.SessionObserve)
		api.POST("/session/resolve", s.SessionResolve)
		api.POST("/session/reject", s.SessionReject)
		api.POST("/session/sign", s.SessionSign)

		api.GET("/assets", s.Assets)

		api.GET("/selection", s.SelectionList)
		api.POST("/selection/toggle", s.SelectionToggle)
		api.DELETE("/selection", s.SelectionClear)

		api.POST("/burn", s.BurnStart)
		api.GET("/burn/:id", s.BurnStatus)
		api.GET("/burn/:id/stream", s.BurnStream)
	}

	return r
}

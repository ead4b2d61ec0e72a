// Package http exposes the contest service over REST and a standings
// websocket.
package http

import (
	"net/http"

	"github.com/decred/slog"
	"github.com/gin-gonic/gin"

	"contest-settlement/internal/app"
)

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(service *app.ContestService, log slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(errorHandler(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	contests := NewContestHandler(service)
	router.POST("/commitments", contests.Commit)
	router.GET("/fees", contests.Fees)
	router.PUT("/fees", contests.UpdateFees)

	group := router.Group("/contests")
	group.POST("", contests.Create)
	group.GET("/:id", contests.Get)
	group.DELETE("/:id", contests.Close)
	group.POST("/:id/answer-key", contests.RegisterAnswerKey)
	group.POST("/:id/join", contests.Join)
	group.POST("/:id/donate", contests.Donate)
	group.PUT("/:id/commission", contests.UpdateCommission)
	group.POST("/:id/submissions", contests.Submit)
	group.POST("/:id/settle", contests.Settle)
	group.POST("/:id/claims", contests.Claim)
	group.GET("/:id/results", contests.Results)
	group.GET("/:id/proofs/:player", contests.Proofs)

	ws := NewWSHandler(service, log)
	router.GET("/ws", gin.WrapF(ws.ServeWS))
	return router
}

package router

import (
	"Exam-Prep-Assessment-Backend/internal/api"
	"Exam-Prep-Assessment-Backend/internal/monitoring"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const serviceName = "exam-prep-assessment"

func SetupRouter(examHandler *api.ExamHandler, limiter *api.RateLimiter, metrics *monitoring.Metrics,
	log *zap.Logger, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	config := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	config.AllowHeaders = append(config.AllowHeaders, api.RequestIDHeader, "Content-Type")
	config.ExposeHeaders = append(config.ExposeHeaders, api.RequestIDHeader, "Retry-After")
	r.Use(cors.New(config))

	r.Use(otelgin.Middleware(serviceName))
	r.Use(api.RequestLogger(log))
	r.Use(metrics.Middleware())

	r.GET("/metrics", metrics.Handler())

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/generate", limiter.Middleware(), examHandler.GenerateHandler)

		apiV1.GET("/assessment", examHandler.CurrentAssessmentHandler)
		apiV1.POST("/assessment", examHandler.PublishAssessmentHandler)
		apiV1.DELETE("/assessment", examHandler.ClearAssessmentHandler)

		apiV1.POST("/evaluate", examHandler.EvaluateHandler)
		apiV1.POST("/evaluate/batch", examHandler.EvaluateBatchHandler)
		apiV1.POST("/attempts", examHandler.SubmitAttemptHandler)
		apiV1.GET("/history", examHandler.HistoryHandler)

		apiV1.GET("/curriculum", examHandler.CurriculumHandler)
		apiV1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "UP"})
		})
	}

	return r
}

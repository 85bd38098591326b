package handler

import (
	"bytes"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/armchr/graphogm/internal/config"
	"github.com/armchr/graphogm/internal/controller"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// responseWriter wraps gin.ResponseWriter to capture the response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func SetupRouter(graphController *controller.GraphController, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(CustomRecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(cfg.App.DebugHTTP, logger))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "healthy",
			})
		})

		// Registered types
		v1.GET("/models", graphController.ListModels)
		v1.GET("/models/:type", graphController.GetModel)

		// Nodes; query parameters other than limit, skip, order_by, desc,
		// distinct, only and explain are filter lookups
		v1.GET("/nodes/:type", graphController.ListNodes)
		v1.GET("/nodes/:type/:uuid", graphController.GetNode)
		v1.GET("/count/:type", graphController.CountNodes)

		// Relationships of one node
		v1.GET("/nodes/:type/:uuid/rel/:name", graphController.ListRelated)
		v1.GET("/nodes/:type/:uuid/rel/:name/count", graphController.CountRelated)
	}

	return router
}

const maxLoggedBody = 10000

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "... (truncated)"
	}
	return string(body)
}

// LoggerMiddleware logs every request and response. With debugHTTP the
// bodies are logged too.
func LoggerMiddleware(debugHTTP bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
		}

		var captured *bytes.Buffer
		requestFields := append([]zap.Field{zap.String("client_ip", c.ClientIP())}, fields...)
		if debugHTTP {
			if c.Request.Body != nil {
				body, _ := io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(bytes.NewReader(body))
				if len(body) > 0 {
					requestFields = append(requestFields, zap.String("request_body", truncate(body)))
				}
			}
			captured = &bytes.Buffer{}
			c.Writer = &responseWriter{ResponseWriter: c.Writer, body: captured}
		}
		logger.Info("HTTP Request", requestFields...)

		c.Next()

		fields = append(fields,
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
		if captured != nil && captured.Len() > 0 {
			fields = append(fields, zap.String("response_body", truncate(captured.Bytes())))
		}
		logger.Info("HTTP Response", fields...)
	}
}

// CustomRecoveryMiddleware turns a panic in a handler into a 500 and logs
// the stack.
func CustomRecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

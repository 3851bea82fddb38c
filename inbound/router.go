package inbound

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-webhook-ingest/core"
)

type RouterConfig struct {
	Routes      []string
	MetricsPath string
	Metrics     http.Handler
}

// NewRouter sends every verb on the notification routes to the handler so
// the request gate, not gin, decides on 405 and the Allow header. Verbs gin
// does not register with Any, and paths with a trailing slash, reach the
// handler through NoRoute.
func NewRouter(handler *Handler, config RouterConfig) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = false
	router.RedirectTrailingSlash = false
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		handler.observer.Error(c.Request.Context(), "http handler panic", map[string]any{
			"path":  c.Request.URL.Path,
			"panic": recovered,
		})
		c.Data(http.StatusInternalServerError, contentTypeText, []byte(publicBody(http.StatusInternalServerError)))
	}))
	router.Use(accessLog(handler.observer))

	routes := config.Routes
	if len(routes) == 0 {
		routes = []string{core.DefaultWebhookRoute}
	}
	webhookRoutes := make(map[string]struct{}, len(routes))
	for _, route := range routes {
		route = normalizeRoute(route)
		if route == "" {
			continue
		}
		webhookRoutes[route] = struct{}{}
		router.Any(route, handler.Receive)
	}

	router.GET("/", handler.Healthz)
	router.GET("/healthz", handler.Healthz)
	router.GET("/readyz", handler.Readyz)
	if config.Metrics != nil {
		path := strings.TrimSpace(config.MetricsPath)
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(config.Metrics))
	}
	router.NoRoute(func(c *gin.Context) {
		if _, ok := webhookRoutes[normalizeRoute(c.Request.URL.Path)]; ok {
			handler.Receive(c)
			return
		}
		c.Data(http.StatusNotFound, contentTypeText, []byte(publicBody(http.StatusNotFound)))
	})
	return router
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	return route
}

func accessLog(observer core.Observer) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		observer.Debug(c.Request.Context(), "http request", map[string]any{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})
	}
}

package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/pictor/internal/api/handlers"
	"github.com/your-org/pictor/internal/api/ws"
	"github.com/your-org/pictor/internal/jobs"
	"github.com/your-org/pictor/internal/storage"
)

type RouterConfig struct {
	Store     *storage.FileStore
	Executor  *jobs.Executor
	// Publisher and Queue are nil when NATS is not configured.
	Publisher handlers.JobPublisher
	Queue     handlers.Pinger
	Hub       *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.MaxMultipartMemory = cfg.Store.MaxBytes()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints
	systemH := handlers.NewSystemHandler(cfg.Store, cfg.Executor.Analyzer(), cfg.Queue)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	analysisH := handlers.NewAnalysisHandler(cfg.Store, cfg.Executor)
	r.GET("/uploads/:filename", analysisH.Serve)

	v1 := r.Group("/v1")
	v1.Use(BodyLimitMiddleware(requestLimit(cfg.Store.MaxBytes())))

	v1.POST("/face-detection", analysisH.FaceDetection)
	v1.POST("/face-recognition", analysisH.FaceRecognition)
	v1.GET("/filters", analysisH.ListFilters)
	v1.POST("/filters", analysisH.Filter)
	v1.POST("/object-detection", analysisH.ObjectDetection)

	// Jobs
	jobH := handlers.NewJobHandler(cfg.Store, cfg.Publisher)
	v1.POST("/jobs", jobH.Submit)
	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	return r
}

// requestLimit leaves room for base64 expansion and multipart framing.
func requestLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		return 0
	}
	return maxUpload*4/3 + 1<<20
}

// BodyLimitMiddleware caps request bodies at limit bytes. Zero disables it.
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

package http

import (
	"context"
	"errors"
	"net"
	gohttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-router/internal/aggregator"
	"github.com/hxuan190/swap-router/internal/common"
	"github.com/hxuan190/swap-router/internal/config"
	"github.com/hxuan190/swap-router/internal/http/httputil"
	"github.com/hxuan190/swap-router/internal/http/middlewares"
)

const HTTP_SERVICE = "http-service"

type HTTPService struct {
	container.BaseDIInstance

	aggregatorSvc *aggregator.Service
	rateLimiter   *middlewares.RateLimiter
	server        *gohttp.Server
	conf          *config.GeneralConfig

	handlers []httputil.IHttpHandler
}

func (svc *HTTPService) ID() string {
	return HTTP_SERVICE
}

// ready reports whether the router can serve quotes.
type ready func() bool

// NewEngine builds the gin engine with the shared middleware stack and
// mounts handlers under /api/v1.
func NewEngine(limiter *middlewares.RateLimiter, isReady ready, handlers ...httputil.IHttpHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestIDMiddleware())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AddAllowHeaders(common.RequestIDHeader)
	corsConf.AddExposeHeaders(common.RequestIDHeader)
	r.Use(cors.New(corsConf))

	r.Use(middlewares.MetricsMiddleware())

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		if isReady != nil && !isReady() {
			c.JSON(gohttp.StatusServiceUnavailable, gin.H{"status": "loading"})
			return
		}
		c.JSON(gohttp.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("api")
	pub := api.Group(common.APIVersion)
	if limiter != nil {
		pub.Use(limiter.RateLimitMiddleware())
	}
	for _, h := range handlers {
		h.SetRoutes(pub.Group(h.Root()))
	}
	return r
}

func (svc *HTTPService) Configure(c container.IContainer) error {
	svc.conf = c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig)
	if svc.conf == nil {
		return errors.New("invalid server config")
	}
	if svc.conf.Env == config.ProdEnv {
		gin.SetMode(gin.ReleaseMode)
	}

	svc.aggregatorSvc = c.Instance(aggregator.AGGREGATOR_SERVICE).(*aggregator.Service)
	svc.rateLimiter = middlewares.NewRateLimiter(svc.conf.RateLimitPerMinute, svc.conf.RateLimitBurst)

	svc.handlers = []httputil.IHttpHandler{
		NewPoolHandler(svc.aggregatorSvc.Registry(), svc.aggregatorSvc.CacheSize),
		NewQuoteHandler(svc.aggregatorSvc, svc.conf.QuoteTimeout),
	}
	return nil
}

func (svc *HTTPService) Start() error {
	isReady := func() bool { return svc.aggregatorSvc.Registry().Len() > 0 }
	engine := NewEngine(svc.rateLimiter, isReady, svc.handlers...)

	svc.server = &gohttp.Server{
		Addr:              net.JoinHostPort(svc.conf.HTTPHost, svc.conf.HTTPPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// bind before returning so a busy port fails startup
	ln, err := net.Listen("tcp", svc.server.Addr)
	if err != nil {
		return err
	}
	log.Info().Str("host", svc.conf.HTTPHost).Str("port", svc.conf.HTTPPort).Msg("http server started")

	go func() {
		if err := svc.server.Serve(ln); err != nil && !errors.Is(err, gohttp.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()
	return nil
}

func (svc *HTTPService) Stop() error {
	if svc.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
		return err
	}
	log.Info().Msg("http server stopped gracefully")
	return nil
}

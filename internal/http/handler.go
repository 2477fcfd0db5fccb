package http

import (
	"context"
	"errors"
	"fmt"
	gohttp "net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator"
	"github.com/hxuan190/evm-quote-engine/internal/config"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/http/httputil"
	"github.com/hxuan190/evm-quote-engine/internal/http/middlewares"
)

const (
	API_VERSION  = "v1"
	HTTP_SERVICE = "http-service"
)

// QuoteService is what the HTTP handlers need from the aggregator.
type QuoteService interface {
	Quote(ctx context.Context, req domain.QuoteRequest) (*domain.QuoteResult, error)
	Simulate(ctx context.Context, routeID int, amount *uint256.Int, mode domain.SwapMode) (*aggregator.RouteQuote, error)
	Routes() []domain.Route
	Account(ctx context.Context, addr common.Address) (domain.Account, domain.BlockRef, error)
	Storage(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, domain.BlockRef, error)
}

type HTTPService struct {
	container.BaseDIInstance

	aggregatorSvc QuoteService
	rateLimiter   *middlewares.RateLimiter
	server        *gohttp.Server
	conf          *config.GeneralConfig

	handlers []httputil.IHttpHandler
}

func (svc *HTTPService) ID() string {
	return HTTP_SERVICE
}

func (svc *HTTPService) Start() error {
	svc.server = &gohttp.Server{
		Addr:              svc.conf.HTTPHost + ":" + svc.conf.HTTPPort,
		Handler:           svc.engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("host", svc.conf.HTTPHost).Str("port", svc.conf.HTTPPort).Msg("http server started")

	if err := svc.server.ListenAndServe(); err != nil && !errors.Is(err, gohttp.ErrServerClosed) {
		return err
	}
	return nil
}

func (svc *HTTPService) engine() *gin.Engine {
	if svc.conf.Env == config.ProdEnv {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	r.Use(cors.New(corsConf))

	r.Use(middlewares.MetricsMiddleware())
	r.Use(svc.rateLimiter.RateLimitMiddleware())

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(gohttp.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("api")
	pub := api.Group(API_VERSION)
	debug := api.Group(fmt.Sprintf("%s/debug", API_VERSION))

	for _, h := range svc.handlers {
		h.SetRoutes(pub.Group(h.Root()), debug.Group(h.Root()))
	}
	return r
}

func (svc *HTTPService) Configure(c container.IContainer) error {
	svc.conf = c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig)
	if svc.conf == nil {
		return errors.New("invalid server config")
	}

	svc.aggregatorSvc = c.Instance(aggregator.AGGREGATOR_SERVICE).(*aggregator.Service)
	svc.init()
	return nil
}

func (svc *HTTPService) init() {
	svc.rateLimiter = middlewares.NewRateLimiter(float64(svc.conf.RateLimit), svc.conf.RateBurst)
	svc.handlers = []httputil.IHttpHandler{
		NewQuoteHandler(svc.aggregatorSvc),
		NewRoutesHandler(svc.aggregatorSvc),
		NewSimulateHandler(svc.aggregatorSvc),
		NewStateHandler(svc.aggregatorSvc),
	}
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

package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/analytics"
	"github.com/trezcool/beerxchange/core/brewing"
	"github.com/trezcool/beerxchange/core/exchange"
	"github.com/trezcool/beerxchange/core/user"
	livesvc "github.com/trezcool/beerxchange/services/live"
	uploadsvc "github.com/trezcool/beerxchange/services/upload"
)

type (
	ServerDeps struct {
		Conf         *core.Config
		Logger       core.Logger
		UserSvc      *user.Service
		ExchangeSvc  *exchange.Service
		AnalyticsSvc *analytics.Service
		BrewingSvc   *brewing.Service
		Broker       *livesvc.Broker
		Images       *uploadsvc.ImageStore
		Validate     *validator.Validate
		Translator   ut.Translator

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		deps        ServerDeps
		app         *echo.Echo
		errors      chan error
		shutdown    chan os.Signal
		stopCleanup func()
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.Static("/uploads", s.deps.Images.Dir())

	g := s.app.Group("/api")
	g.GET("/health", health)

	auth := newAuthenticator(conf, s.deps.UserSvc)
	jwt := middleware.JWTWithConfig(auth.jwtConfig)
	limiter := newRateLimiter(conf.Server.LoginRateLimit, conf.Server.LoginRateBurst)
	s.stopCleanup = func() {}
	if conf.Server.LoginRateLimit > 0 {
		s.stopCleanup = limiter.startCleanup(time.Minute)
	}

	registerUserAPI(g, jwt, limiter.middleware(), auth, s.deps.Validate)
	registerExchangeAPI(g, jwt, s.deps.ExchangeSvc, s.deps.Images, s.deps.Validate)
	registerAnalyticsAPI(g, s.deps.AnalyticsSvc)
	brewer := auth.brewerResolver(conf.DemoBrewer)
	registerBrewingAPI(g, brewer, s.deps.BrewingSvc, s.deps.Validate)
	registerLiveAPI(g, brewer, s.deps.Broker, s.deps.ExchangeSvc, s.deps.BrewingSvc, conf.Server)
	registerUploadAPI(g, s.deps.Images)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) Shutdown(ctx context.Context) error {
	s.stopCleanup()
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	s.stopCleanup()
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// signalShutdown asks main to shut the server down gracefully.
func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
}

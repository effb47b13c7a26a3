package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/beerxchange/apps/api/echo"
	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/analytics"
	"github.com/trezcool/beerxchange/core/brewing"
	"github.com/trezcool/beerxchange/core/exchange"
	"github.com/trezcool/beerxchange/core/user"
	livesvc "github.com/trezcool/beerxchange/services/live"
	logsvc "github.com/trezcool/beerxchange/services/logger"
	metricsvc "github.com/trezcool/beerxchange/services/metrics"
	uploadsvc "github.com/trezcool/beerxchange/services/upload"
	"github.com/trezcool/beerxchange/storage/database"
	"github.com/trezcool/beerxchange/storage/database/inmem"
	"github.com/trezcool/beerxchange/storage/database/sqlx"
)

type repositories struct {
	user     user.Repository
	exchange exchange.Repository
	brewing  brewing.Repository
	close    func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Wait()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up storage
	repos, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s storage: %v", conf.Database.Backend, err), err)
	}
	defer func() {
		if err = repos.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	collector := metricsvc.NewCollector()
	broker := livesvc.NewBroker(collector)
	usrSvc := user.NewService(repos.user)
	exchangeSvc := exchange.NewService(repos.exchange, broker, collector, logger, conf)
	brewingSvc := brewing.NewService(repos.brewing, broker)
	analyticsSvc := analytics.NewService(repos.exchange)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, storage %q", conf.Build, conf.Database.Backend))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	brewing.InitValidators(validate, translator)

	created, err := usrSvc.EnsureAdmin(context.Background(), conf.Admin.Username, conf.Admin.Password)
	if err != nil {
		logger.Fatal(fmt.Sprintf("seeding admin: %v", err), err)
	}
	if created {
		logger.Warn(fmt.Sprintf("Created superuser %q with the configured password, change it!", conf.Admin.Username))
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics of the exchange and the live streams.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Database.Backend)
	http.Handle("/metrics", collector.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:         conf,
			Logger:       logger,
			UserSvc:      usrSvc,
			ExchangeSvc:  exchangeSvc,
			AnalyticsSvc: analyticsSvc,
			BrewingSvc:   brewingSvc,
			Broker:       broker,
			Images:       uploadsvc.NewImageStore(conf.UploadDir, "/uploads"),
			Validate:     validate,
			Translator:   translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpStorage(conf *core.Config) (repositories, error) {
	if conf.Database.Backend != core.BackendPostgres {
		db := inmemdb.Open()
		return repositories{
			user:     inmemdb.NewUserRepository(db),
			exchange: inmemdb.NewExchangeRepository(db),
			brewing:  inmemdb.NewBrewingRepository(db),
			close:    func() error { return nil },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return repositories{}, err
	}
	return repositories{
		user:     sqlxrepos.NewUserRepository(db),
		exchange: sqlxrepos.NewExchangeRepository(db),
		brewing:  sqlxrepos.NewBrewingRepository(db),
		close:    db.Close,
	}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

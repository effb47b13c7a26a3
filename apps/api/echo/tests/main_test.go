package tests

import (
	"io"
	"log"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/beerxchange/apps/api/echo"
	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/analytics"
	"github.com/trezcool/beerxchange/core/brewing"
	"github.com/trezcool/beerxchange/core/exchange"
	"github.com/trezcool/beerxchange/core/user"
	livesvc "github.com/trezcool/beerxchange/services/live"
	logsvc "github.com/trezcool/beerxchange/services/logger"
	uploadsvc "github.com/trezcool/beerxchange/services/upload"
	"github.com/trezcool/beerxchange/storage/database/inmem"
	"github.com/trezcool/beerxchange/tests"
)

var (
	conf        *core.Config
	usrRepo     user.Repository
	usrSvc      *user.Service
	exchangeSvc *exchange.Service
	brewingSvc  *brewing.Service
	broker      *livesvc.Broker

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "Forbidden"}
)

// setup wires a fresh server on the memory backend. opts may tweak the config first.
func setup(t *testing.T, opts ...func(*core.Config)) Server {
	conf = testutil.NewConfig(t)
	conf.Server.LoginRateLimit = 0
	for _, opt := range opts {
		opt(conf)
	}

	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	exchangeRepo := inmemdb.NewExchangeRepository(db)
	brewingRepo := inmemdb.NewBrewingRepository(db)

	// set up services
	broker = livesvc.NewBroker(nil)
	usrSvc = user.NewService(usrRepo)
	exchangeSvc = exchange.NewService(exchangeRepo, broker, nil, logger, conf)
	brewingSvc = brewing.NewService(brewingRepo, broker)

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	brewing.InitValidators(validate, translator)

	// set up server
	return NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		ExchangeSvc:    exchangeSvc,
		AnalyticsSvc:   analytics.NewService(exchangeRepo),
		BrewingSvc:     brewingSvc,
		Broker:         broker,
		Images:         uploadsvc.NewImageStore(conf.UploadDir, "/uploads"),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
}

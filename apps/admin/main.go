package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/user"
	"github.com/trezcool/beerxchange/storage/database"
	"github.com/trezcool/beerxchange/storage/database/inmem"
	"github.com/trezcool/beerxchange/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	cli := commandLine{}
	if conf.Database.Backend == core.BackendPostgres {
		errAndDie(database.CreateIfNotExist(conf))
		db, err := database.Open(conf)
		errAndDie(err)
		defer func() { _ = db.Close() }()

		cli.db = db.DB
		cli.usrSvc = user.NewService(sqlxrepos.NewUserRepository(db))
	} else {
		logger.Println("memory backend: changes only last for this command")
		cli.usrSvc = user.NewService(inmemdb.NewUserRepository(inmemdb.Open()))
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		exit(cli.db, 1)
	}
}

// exit closes the database before leaving, as deferred calls do not run on os.Exit.
func exit(db *sql.DB, code int) {
	if db != nil {
		_ = db.Close()
	}
	os.Exit(code)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

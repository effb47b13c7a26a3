package inmemdb

import (
	"encoding/json"
	"sync"

	"github.com/trezcool/beerxchange/core/exchange"
	"github.com/trezcool/beerxchange/core/user"
)

type (
	// DB is the memory storage backend. Every table guards its rows with its own lock.
	DB struct {
		user     *userTable
		exchange *exchangeTables
		brewing  *brewingTables
	}

	userTable struct {
		t     map[string]*user.User
		mutex sync.RWMutex
	}

	exchangeTables struct {
		events       map[string]exchange.Event
		beers        map[string]exchange.Beer
		priceUpdates []exchange.PriceUpdate
		customers    map[string]exchange.Customer
		transactions []exchange.Transaction
		mutex        sync.RWMutex
	}

	brewingTables struct {
		recipes map[string][]byte // JSON, like the postgres JSONB columns
		brews   map[string][]byte
		mutex   sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{t: make(map[string]*user.User)},
		exchange: &exchangeTables{
			events:    make(map[string]exchange.Event),
			beers:     make(map[string]exchange.Beer),
			customers: make(map[string]exchange.Customer),
		},
		brewing: &brewingTables{
			recipes: make(map[string][]byte),
			brews:   make(map[string][]byte),
		},
	}
}

func encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

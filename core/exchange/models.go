package exchange

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/pricing"
)

// Event statuses
const (
	StatusDraft  = "draft"
	StatusLive   = "live"
	StatusClosed = "closed"
)

const (
	DefaultEventName  = "Beer Exchange"
	DefaultVolumeML   = 500
	DefaultTxLimit    = 100
	MaxTxLimit        = 1000
	priceChangeWindow = time.Hour
)

type Event struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Currency  string      `json:"currency" db:"currency"`
	Status    string      `json:"status" db:"status"`
	StartsAt  null.Time   `json:"starts_at" db:"starts_at"`
	EndsAt    null.Time   `json:"ends_at" db:"ends_at"`
	ImageURL  null.String `json:"image_url" db:"image_url"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
}

func (e Event) IsClosed() bool { return e.Status == StatusClosed }

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Name      string `json:"name" form:"name" validate:"max=120"`
	Currency  string `json:"currency" form:"currency" validate:"omitempty,len=3,alpha"`
	StartLive bool   `json:"startLive" form:"startLive"`
	ImageURL  string `json:"image_url" form:"image_url"`
}

func (ne *NewEvent) Clean(defaultCurrency string) {
	ne.Name = core.CleanString(ne.Name)
	if ne.Name == "" {
		ne.Name = DefaultEventName
	}
	ne.Currency = core.CleanString(ne.Currency)
	if ne.Currency == "" {
		ne.Currency = defaultCurrency
	}
}

type Beer struct {
	ID           string       `json:"id" db:"id"`
	EventID      string       `json:"event_id" db:"event_id"`
	Name         string       `json:"name" db:"name"`
	Brewery      null.String  `json:"brewery" db:"brewery"`
	Style        null.String  `json:"style" db:"style"`
	ABV          null.Float64 `json:"abv" db:"abv"`
	IBU          null.Float64 `json:"ibu" db:"ibu"`
	VolumeML     null.Int     `json:"volume_ml" db:"volume_ml"`
	Description  null.String  `json:"description" db:"description"`
	ImageURL     null.String  `json:"image_url" db:"image_url"`
	BasePrice    float64      `json:"base_price" db:"base_price"`
	MinPrice     float64      `json:"min_price" db:"min_price"`
	MaxPrice     float64      `json:"max_price" db:"max_price"`
	CurrentPrice float64      `json:"current_price" db:"current_price"`
	Position     int          `json:"position" db:"position"`
	Active       bool         `json:"active" db:"active"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"` // UTC
}

func (b Beer) pricing() pricing.Beer {
	return pricing.Beer{
		ID:           b.ID,
		BasePrice:    b.BasePrice,
		MinPrice:     b.MinPrice,
		MaxPrice:     b.MaxPrice,
		CurrentPrice: b.CurrentPrice,
	}
}

// BeerWithChange is a Beer enriched with its price change over the last hour, in percent.
type BeerWithChange struct {
	Beer
	LastHourChange null.Float64 `json:"last_hours_change"`
}

// NewBeer contains information needed to attach a beer to an event.
type NewBeer struct {
	Name        string       `json:"name" validate:"required,max=120"`
	Brewery     string       `json:"brewery"`
	Style       string       `json:"style"`
	ABV         null.Float64 `json:"abv"`
	IBU         null.Float64 `json:"ibu"`
	VolumeML    null.Int     `json:"volume_ml"`
	Description string       `json:"description"`
	ImageURL    string       `json:"image_url"`
	BasePrice   *float64     `json:"base_price" validate:"required,gte=0"`
	MinPrice    *float64     `json:"min_price" validate:"required,gte=0"`
	MaxPrice    *float64     `json:"max_price" validate:"required,gte=0"`
	Position    *int         `json:"position"`
	Active      *bool        `json:"active"`
}

func (nb *NewBeer) Clean() {
	nb.Name = core.CleanString(nb.Name)
	nb.Brewery = core.CleanString(nb.Brewery)
	nb.Style = core.CleanString(nb.Style)
	nb.Description = core.CleanString(nb.Description)
}

// UpdateBeer defines what information may be provided to modify an existing Beer.
type UpdateBeer struct {
	Name        *string      `json:"name" validate:"omitempty,min=1,max=120"`
	Brewery     *string      `json:"brewery"`
	Style       *string      `json:"style"`
	ABV         null.Float64 `json:"abv"`
	IBU         null.Float64 `json:"ibu"`
	VolumeML    null.Int     `json:"volume_ml"`
	Description *string      `json:"description"`
	ImageURL    *string      `json:"image_url"`
	BasePrice   *float64     `json:"base_price" validate:"omitempty,gte=0"`
	MinPrice    *float64     `json:"min_price" validate:"omitempty,gte=0"`
	MaxPrice    *float64     `json:"max_price" validate:"omitempty,gte=0"`
	Position    *int         `json:"position"`
	Active      *bool        `json:"active"`
}

type PriceUpdate struct {
	ID          string       `json:"id" db:"id"`
	EventBeerID string       `json:"event_beer_id" db:"event_beer_id"`
	OldPrice    null.Float64 `json:"old_price" db:"old_price"`
	NewPrice    float64      `json:"new_price" db:"new_price"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"` // UTC
}

type Customer struct {
	ID              string       `json:"id" db:"id"`
	EventID         string       `json:"event_id" db:"event_id"`
	Name            string       `json:"name" db:"name"`
	Phone           null.String  `json:"phone" db:"phone"`
	Gender          null.String  `json:"gender" db:"gender"`
	WeightKg        null.Float64 `json:"weight" db:"weight_kg"`
	ProfileImageURL null.String  `json:"profile_image_url" db:"profile_image_url"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"` // UTC
}

// CustomerInput contains the information needed to create or modify a Customer.
type CustomerInput struct {
	Name            string       `json:"name" form:"name" validate:"required,max=120"`
	Phone           string       `json:"phone" form:"phone"`
	Gender          string       `json:"gender" form:"gender" validate:"omitempty,oneof=male female other"`
	WeightKg        null.Float64 `json:"weight" form:"-"`
	ProfileImageURL string       `json:"profile_image_url" form:"profile_image_url"`
}

func (ci *CustomerInput) Clean() {
	ci.Name = core.CleanString(ci.Name)
	ci.Phone = core.CleanString(ci.Phone)
	ci.Gender = core.CleanString(ci.Gender, true /* lower */)
}

type CustomerStats struct {
	Customer
	Beers int     `json:"beers"`
	Tab   float64 `json:"tab"`
}

type CustomerDetails struct {
	CustomerStats
	Transactions []TransactionRow `json:"transactions"`
}

type Transaction struct {
	ID          string      `json:"id" db:"id"`
	EventID     string      `json:"event_id" db:"event_id"`
	EventBeerID string      `json:"event_beer_id" db:"event_beer_id"`
	CustomerID  null.String `json:"customer_id" db:"customer_id"`
	Qty         int         `json:"qty" db:"qty"`
	VolumeML    int         `json:"volume_ml" db:"volume_ml"`
	UnitPrice   float64     `json:"unit_price" db:"unit_price"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
}

// TransactionRow is a Transaction joined with its customer and beer names.
type TransactionRow struct {
	Transaction
	CustomerName null.String `json:"customer_name" db:"customer_name"`
	BeerName     null.String `json:"beer_name" db:"beer_name"`
}

// NewTransaction contains the information needed to register a purchase.
type NewTransaction struct {
	EventID     string  `json:"event_id" validate:"required"`
	EventBeerID string  `json:"event_beer_id" validate:"required"`
	CustomerID  string  `json:"customer_id"`
	Qty         int     `json:"qty"`
	VolumeML    int     `json:"volume_ml" validate:"gte=0"`
	PriceClient float64 `json:"price_client" validate:"gte=0"`
}

// Sale is one transaction joined with the base price of its beer.
type Sale struct {
	Qty       int     `db:"qty"`
	UnitPrice float64 `db:"unit_price"`
	BasePrice float64 `db:"base_price"`
}

// PurchaseResult is what a purchase produced: the transaction and the prices it moved.
type PurchaseResult struct {
	Transaction  TransactionRow `json:"transaction"`
	PriceUpdates []PriceUpdate  `json:"price_updates"`
}

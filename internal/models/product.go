package models

import (
	"time"
)

// Unavailable is stored in place of any field that could not be read from a listing.
const Unavailable = "N/A"

type ProductRecord struct {
	Site      string    `json:"site"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	DetailURL string    `json:"detail_url"`
	Seller    string    `json:"seller"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// NewProductRecord returns a record with every field set to Unavailable.
func NewProductRecord(site string) ProductRecord {
	return ProductRecord{
		Site:      site,
		Name:      Unavailable,
		Price:     Unavailable,
		DetailURL: Unavailable,
		Seller:    Unavailable,
		ScrapedAt: time.Now(),
	}
}

// PriceView is the projection served by the read endpoint.
type PriceView struct {
	Name   string `json:"name"`
	Price  string `json:"price"`
	Seller string `json:"seller"`
}

func (p ProductRecord) View() PriceView {
	return PriceView{
		Name:   p.Name,
		Price:  p.Price,
		Seller: p.Seller,
	}
}

func (p ProductRecord) Missing() []string {
	var missing []string

	if p.Name == Unavailable {
		missing = append(missing, "name")
	}
	if p.Price == Unavailable {
		missing = append(missing, "price")
	}
	if p.DetailURL == Unavailable {
		missing = append(missing, "detail_url")
	}
	if p.Seller == Unavailable {
		missing = append(missing, "seller")
	}

	return missing
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProductRecord(t *testing.T) {
	rec := NewProductRecord("n11")

	assert.Equal(t, "n11", rec.Site)
	assert.Equal(t, Unavailable, rec.Name)
	assert.Equal(t, Unavailable, rec.Price)
	assert.Equal(t, Unavailable, rec.DetailURL)
	assert.Equal(t, Unavailable, rec.Seller)
	assert.False(t, rec.ScrapedAt.IsZero())
	assert.ElementsMatch(t, []string{"name", "price", "detail_url", "seller"}, rec.Missing())
}

func TestProductRecordView(t *testing.T) {
	rec := ProductRecord{
		Site:      "trendyol",
		Name:      "MacBook Air M2",
		Price:     "32.999 TL",
		DetailURL: "https://www.trendyol.com/p/1",
		Seller:    "Apple",
	}

	assert.Equal(t, PriceView{Name: "MacBook Air M2", Price: "32.999 TL", Seller: "Apple"}, rec.View())
	assert.Empty(t, rec.Missing())
}

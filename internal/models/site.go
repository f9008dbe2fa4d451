package models

// Locators holds the CSS selectors used to find listing fields on a site.
type Locators struct {
	ProductList string `json:"product_list" yaml:"product_list" validate:"required"`
	Name        string `json:"name" yaml:"name" validate:"required"`
	Price       string `json:"price" yaml:"price" validate:"required"`
	DetailURL   string `json:"detail_url" yaml:"detail_url" validate:"required"`
	Seller      string `json:"seller" yaml:"seller" validate:"required"`
}

// SiteProfile is read-only configuration for one e-commerce site.
type SiteProfile struct {
	Key       string   `json:"key" yaml:"key" validate:"required"`
	BaseURL   string   `json:"base_url" yaml:"base_url" validate:"required,url"`
	SearchURL string   `json:"search_url" yaml:"search_url" validate:"required,url"`
	Locators  Locators `json:"locators" yaml:"locators"`
}

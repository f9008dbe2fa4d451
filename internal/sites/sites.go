package sites

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pricetracker/price-tracker/internal/models"
)

var ErrUnknownSite = errors.New("unknown site")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Registry is the static mapping from site key to profile. It is not modified
// after construction.
type Registry struct {
	profiles map[string]models.SiteProfile
	order    []string
}

type fileFormat struct {
	Sites []models.SiteProfile `yaml:"sites"`
}

func NewRegistry(profiles []models.SiteProfile) (*Registry, error) {
	r := &Registry{
		profiles: make(map[string]models.SiteProfile, len(profiles)),
	}

	for _, p := range profiles {
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("invalid site profile %q: %w", p.Key, err)
		}
		if _, dup := r.profiles[p.Key]; dup {
			return nil, fmt.Errorf("duplicate site profile %q", p.Key)
		}
		r.profiles[p.Key] = p
		r.order = append(r.order, p.Key)
	}

	return r, nil
}

// Load reads profiles from a YAML file, or returns the built-in profiles when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(Defaults())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sites file: %w", err)
	}

	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("sites file %s defines no sites", path)
	}

	return NewRegistry(f.Sites)
}

func (r *Registry) Get(key string) (models.SiteProfile, error) {
	p, ok := r.profiles[key]
	if !ok {
		return models.SiteProfile{}, fmt.Errorf("%w: %s", ErrUnknownSite, key)
	}
	return p, nil
}

// All returns profiles in registration order.
func (r *Registry) All() []models.SiteProfile {
	out := make([]models.SiteProfile, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.profiles[key])
	}
	return out
}

// Select returns the profiles named by keys in registration order. An empty
// key list selects every profile.
func (r *Registry) Select(keys []string) ([]models.SiteProfile, error) {
	if len(keys) == 0 {
		return r.All(), nil
	}

	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		if _, ok := r.profiles[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSite, key)
		}
		wanted[key] = true
	}

	var out []models.SiteProfile
	for _, key := range r.order {
		if wanted[key] {
			out = append(out, r.profiles[key])
		}
	}
	return out, nil
}

func (r *Registry) Keys() []string {
	keys := append([]string(nil), r.order...)
	sort.Strings(keys)
	return keys
}

func Defaults() []models.SiteProfile {
	return []models.SiteProfile{
		{
			Key:       "n11",
			BaseURL:   "https://www.n11.com",
			SearchURL: "https://www.n11.com/arama?q=macbook+air+m2",
			Locators: models.Locators{
				ProductList: ".list-ul .columnContent",
				Name:        ".productName",
				Price:       ".newPrice",
				DetailURL:   "a",
				Seller:      ".sellerNickName",
			},
		},
		{
			Key:       "hepsiburada",
			BaseURL:   "https://www.hepsiburada.com",
			SearchURL: "https://www.hepsiburada.com/ara?q=macbook+air+m2",
			Locators: models.Locators{
				ProductList: "ul.productListContent-frGrtf5XrVXRwJ05HUfU div.moria-ProductCard-joawUM",
				Name:        ".moria-ProductCard-bBDoAL",
				Price:       ".moria-ProductCard-fHiOwt",
				DetailURL:   "a",
				Seller:      ".W5OUPzvBGtzo9IdLz4Li",
			},
		},
		{
			Key:       "trendyol",
			BaseURL:   "https://www.trendyol.com",
			SearchURL: "https://www.trendyol.com/sr?wc=103108&q=macbook+air+m2",
			Locators: models.Locators{
				ProductList: ".prdct-cntnr-wrppr .p-card-chldrn-cntnr",
				Name:        ".prdct-desc-cntnr-ttl-w",
				Price:       ".prc-box-dscntd",
				DetailURL:   "a",
				Seller:      ".seller-name-text",
			},
		},
	}
}

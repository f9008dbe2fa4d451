package sites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricetracker/price-tracker/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "n11", all[0].Key)
	assert.Equal(t, "hepsiburada", all[1].Key)
	assert.Equal(t, "trendyol", all[2].Key)
	assert.Equal(t, []string{"hepsiburada", "n11", "trendyol"}, reg.Keys())

	p, err := reg.Get("trendyol")
	require.NoError(t, err)
	assert.Equal(t, ".seller-name-text", p.Locators.Seller)
}

func TestSelect(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	selected, err := reg.Select([]string{"trendyol", "n11"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "n11", selected[0].Key)
	assert.Equal(t, "trendyol", selected[1].Key)

	_, err = reg.Select([]string{"amazon"})
	assert.ErrorIs(t, err, ErrUnknownSite)

	_, err = reg.Get("amazon")
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	content := `
sites:
  - key: shop
    base_url: https://shop.example.com
    search_url: https://shop.example.com/search?q=laptop
    locators:
      product_list: .item
      name: .title
      price: .price
      detail_url: a
      seller: .seller
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)

	p, err := reg.Get("shop")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/search?q=laptop", p.SearchURL)
	assert.Equal(t, ".item", p.Locators.ProductList)
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("sites: []\n"), 0o644))
	_, err := Load(empty)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("sites: [\n"), 0o644))
	_, err = Load(broken)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestNewRegistryValidation(t *testing.T) {
	valid := Defaults()[0]

	noSeller := valid
	noSeller.Locators.Seller = ""
	_, err := NewRegistry([]models.SiteProfile{noSeller})
	assert.Error(t, err)

	badURL := valid
	badURL.SearchURL = "not a url"
	_, err = NewRegistry([]models.SiteProfile{badURL})
	assert.Error(t, err)

	_, err = NewRegistry([]models.SiteProfile{valid, valid})
	assert.ErrorContains(t, err, "duplicate")
}

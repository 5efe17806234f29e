package pruner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

//go:embed categories.yaml
var defaultCatalogYAML []byte

type Category struct {
	Name        string   `yaml:"name"`
	CadenceDays float64  `yaml:"cadenceDays"`
	Keywords    []string `yaml:"keywords"`
}

// Catalog maps product names to a category and its default restock cadence.
type Catalog struct {
	Default    Category   `yaml:"default"`
	Categories []Category `yaml:"categories"`

	byName map[string]Category
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded categories.yaml: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from path, or returns the embedded one when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.CategoryIOFailure, "catalog_read_failed", "check CATEGORIES_PATH")
	}
	return ParseCatalog(blob)
}

func ParseCatalog(blob []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(blob, &c); err != nil {
		return nil, errs.Wrap(err, errs.CategoryInvalidInput, "invalid_catalog", "")
	}
	if c.Default.Name == "" {
		c.Default.Name = "other"
	}
	if c.Default.CadenceDays <= 0 {
		return nil, errs.Invalid("invalid_catalog", "default cadence must be positive")
	}

	c.byName = make(map[string]Category, len(c.Categories))
	for i, cat := range c.Categories {
		key := util.NormalizeName(cat.Name)
		if key == "" {
			return nil, errs.Invalid("invalid_catalog", "category %d has no name", i)
		}
		if cat.CadenceDays <= 0 {
			return nil, errs.Invalid("invalid_catalog", "category %q: cadence must be positive", cat.Name)
		}
		if _, dup := c.byName[key]; dup {
			return nil, errs.Invalid("invalid_catalog", "category %q listed twice", cat.Name)
		}
		c.byName[key] = cat
	}
	return &c, nil
}

// Lookup finds a category by name.
func (c *Catalog) Lookup(name string) (Category, bool) {
	cat, ok := c.byName[util.NormalizeName(name)]
	return cat, ok
}

// Classify infers the category of a product from whole-word keyword matches
// on its name. The longest matching keyword wins; ties go to the category
// listed first.
func (c *Catalog) Classify(productName string) Category {
	padded := " " + strings.Join(util.Tokenize(productName, 0), " ") + " "

	best, bestLen := c.Default, 0
	for _, cat := range c.Categories {
		for _, kw := range cat.Keywords {
			norm := strings.Join(util.Tokenize(kw, 0), " ")
			if norm == "" || len(norm) <= bestLen {
				continue
			}
			if strings.Contains(padded, " "+norm+" ") {
				best, bestLen = cat, len(norm)
			}
		}
	}
	return best
}

// Resolve returns the category for an item. An explicit category wins over
// keyword inference; unknown explicit names keep the default cadence.
func (c *Catalog) Resolve(productName string, explicit *string) Category {
	if name := strings.TrimSpace(util.Deref(explicit)); name != "" {
		if cat, ok := c.Lookup(name); ok {
			return cat
		}
		return Category{Name: util.NormalizeName(name), CadenceDays: c.Default.CadenceDays}
	}
	return c.Classify(productName)
}

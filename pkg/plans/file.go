package plans

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk form of a catalog override
type catalogFile struct {
	Plans []filePlan `yaml:"plans"`
}

type filePlan struct {
	Name        string         `yaml:"name"`
	DisplayName string         `yaml:"displayName"`
	Price       float64        `yaml:"price"`
	Currency    string         `yaml:"currency"`
	Limits      map[string]int `yaml:"limits"`
}

// LoadFile reads a YAML catalog. Limits use -1 for unlimited and every
// feature must be listed for every tier.
//
//	plans:
//	  - name: retail_india
//	    displayName: Retail India
//	    price: 10
//	    currency: USD
//	    limits: {weatherBrief: 50, researchLab: 10, chat: 20, insights: -1}
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document
func Parse(data []byte) (*Catalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for _, fp := range doc.Plans {
		tier, ok := ParseTier(fp.Name)
		if !ok {
			return nil, fmt.Errorf("unknown tier %q in catalog", fp.Name)
		}
		p := Plan{
			Name:        tier,
			DisplayName: fp.DisplayName,
			Price:       fp.Price,
			Currency:    fp.Currency,
		}
		if p.Currency == "" {
			p.Currency = "USD"
		}
		for _, f := range Features() {
			v, ok := fp.Limits[string(f)]
			if !ok {
				return nil, fmt.Errorf("tier %q is missing a limit for %q", fp.Name, f)
			}
			a, err := ParseAllowance(v)
			if err != nil {
				return nil, fmt.Errorf("tier %q feature %q: %w", fp.Name, f, err)
			}
			p.Limits.Set(f, a)
		}
		if len(fp.Limits) != len(Features()) {
			return nil, fmt.Errorf("tier %q lists unknown features", fp.Name)
		}
		plans = append(plans, p)
	}

	return NewCatalog(plans)
}

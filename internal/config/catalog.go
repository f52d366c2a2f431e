package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is a framework's control list, imported with `grcctl controls
// import`.
type Catalog struct {
	Framework string          `yaml:"framework"`
	Domains   []CatalogDomain `yaml:"domains"`
}

type CatalogDomain struct {
	Code     string           `yaml:"code"`
	Name     string           `yaml:"name"`
	Controls []CatalogControl `yaml:"controls"`
}

type CatalogControl struct {
	Code           string                 `yaml:"code"`
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description"`
	Implementation *CatalogImplementation `yaml:"implementation"`
}

type CatalogImplementation struct {
	Status     string `yaml:"status"`
	Automation string `yaml:"automation"`
	Frequency  string `yaml:"frequency"`
}

func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if c.Framework == "" {
		return Catalog{}, fmt.Errorf("catalog %s: framework is required", path)
	}
	for _, d := range c.Domains {
		for _, ctl := range d.Controls {
			if ctl.Code == "" {
				return Catalog{}, fmt.Errorf("catalog %s: control without code in domain %s", path, d.Code)
			}
		}
	}
	return c, nil
}

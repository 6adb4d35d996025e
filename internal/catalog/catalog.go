// Package catalog is the read-only service menu: what can be booked and what
// it costs.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyCatalog     = errors.New("service catalog is empty")
	ErrDuplicateService = errors.New("duplicate service id")
	ErrInvalidService   = errors.New("invalid service definition")
)

type Service struct {
	ID    string `yaml:"id"    json:"id"`
	Name  string `yaml:"name"  json:"name"`
	Price int64  `yaml:"price" json:"price"`
}

type file struct {
	Currency string    `yaml:"currency"`
	Services []Service `yaml:"services"`
}

type Catalog struct {
	currency string
	order    []string
	services map[string]Service
}

func New(currency string, services []Service) (*Catalog, error) {
	if len(services) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		currency: currency,
		services: make(map[string]Service, len(services)),
	}

	for _, s := range services {
		s.ID = strings.TrimSpace(s.ID)
		s.Name = strings.TrimSpace(s.Name)

		if s.ID == "" || s.Name == "" || s.Price < 0 {
			return nil, fmt.Errorf("service %+v: %w", s, ErrInvalidService)
		}

		if _, ok := c.services[s.ID]; ok {
			return nil, fmt.Errorf("service %q: %w", s.ID, ErrDuplicateService)
		}

		c.services[s.ID] = s
		c.order = append(c.order, s.ID)
	}

	return c, nil
}

// LoadFile reads a YAML menu. A currency in the file overrides the fallback.
func LoadFile(path, fallbackCurrency string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service catalog %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode service catalog %s: %w", path, err)
	}

	currency := fallbackCurrency
	if f.Currency != "" {
		currency = f.Currency
	}

	return New(currency, f.Services)
}

func Default(currency string) *Catalog {
	c, err := New(currency, []Service{
		{ID: "signature-cut", Name: "Signature Haircut", Price: 800},
		{ID: "beard-sculpt", Name: "Beard Sculpting", Price: 500},
		{ID: "hair-color", Name: "Global Hair Colour", Price: 2500},
		{ID: "keratin", Name: "Keratin Treatment", Price: 4500},
		{ID: "hair-spa", Name: "Luxury Hair Spa", Price: 1800},
		{ID: "gold-facial", Name: "24K Gold Facial", Price: 3000},
		{ID: "groom-package", Name: "Groom Package", Price: 9999},
	})
	if err != nil {
		panic(err)
	}

	return c
}

func (c *Catalog) Resolve(id string) (Service, bool) {
	s, ok := c.services[id]

	return s, ok
}

func (c *Catalog) Services() []Service {
	out := make([]Service, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.services[id])
	}

	return out
}

// Display formats a price for humans, e.g. "₹2,500".
func (c *Catalog) Display(price int64) string {
	sign := ""
	if price < 0 {
		sign = "-"
		price = -price
	}

	digits := strconv.FormatInt(price, 10)

	var b strings.Builder

	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}

		b.WriteRune(r)
	}

	return sign + c.currency + b.String()
}

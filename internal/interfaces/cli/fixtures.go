package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/expedition-settlement/internal/application/service"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
)

// Fixtures is the YAML document loaded by "settlementctl seed".
// Clients and categories are referenced from packages by their key.
type Fixtures struct {
	Clients     []ClientFixture     `yaml:"clients"`
	Categories  []CategoryFixture   `yaml:"categories"`
	Expeditions []ExpeditionFixture `yaml:"expeditions"`
}

// ClientFixture describes a client and its settlement policy
type ClientFixture struct {
	Key          string              `yaml:"key"`
	Name         string              `yaml:"name"`
	Policy       entity.ClientPolicy `yaml:",inline"`
	NotifyChatID string              `yaml:"notify_chat_id"`
}

// UnmarshalYAML starts from the default client policy so omitted policy
// fields keep their defaults
func (c *ClientFixture) UnmarshalYAML(n *yaml.Node) error {
	type plain ClientFixture
	p := plain{Policy: entity.DefaultClientPolicy()}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*c = ClientFixture(p)
	return nil
}

// CategoryFixture describes a material category
type CategoryFixture struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

// ExpeditionFixture describes an expedition and its packages
type ExpeditionFixture struct {
	Name             string           `yaml:"name"`
	DefaultUnitPrice *decimal.Decimal `yaml:"default_unit_price"`
	InsuranceLimit   *decimal.Decimal `yaml:"insurance_limit"`
	Packages         []PackageFixture `yaml:"packages"`
}

// PackageFixture describes a package with its weight lines
type PackageFixture struct {
	Number          string           `yaml:"number"`
	Client          string           `yaml:"client"`
	Category        string           `yaml:"category"`
	DiscountPercent *decimal.Decimal `yaml:"discount_percent"`
	TaxPercent      decimal.Decimal  `yaml:"tax_percent"`
	UnitPriceFine   *decimal.Decimal `yaml:"unit_price_fine"`
	Lines           []LineFixture    `yaml:"lines"`
	Status          string           `yaml:"status"`
}

// LineFixture is one weighed line
type LineFixture struct {
	Bruto decimal.Decimal `yaml:"bruto"`
	Ley   decimal.Decimal `yaml:"ley"`
}

// SeedResult counts what a seed run created
type SeedResult struct {
	Clients     int
	Categories  int
	Expeditions int
	Packages    int
	Lines       int
}

// DecodeFixtures parses a fixtures document
func DecodeFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}
	return &f, nil
}

// Seeder loads fixtures through the application services, so every package
// gets the same audit log entries as one created over the API.
type Seeder struct {
	Catalog     service.CatalogService
	Expeditions service.ExpeditionService
	Packages    service.PackageService
	Actor       string
}

// Apply creates everything described by f
func (s *Seeder) Apply(ctx context.Context, f *Fixtures) (*SeedResult, error) {
	res := &SeedResult{}
	clients := make(map[string]string, len(f.Clients))
	categories := make(map[string]string, len(f.Categories))

	for _, c := range f.Clients {
		client, err := s.Catalog.CreateClient(ctx, c.Name, c.Policy, c.NotifyChatID)
		if err != nil {
			return res, fmt.Errorf("client %q: %w", c.Key, err)
		}
		clients[c.Key] = client.ID
		res.Clients++
	}

	for _, c := range f.Categories {
		category, err := s.Catalog.CreateCategory(ctx, c.Name)
		if err != nil {
			return res, fmt.Errorf("category %q: %w", c.Key, err)
		}
		categories[c.Key] = category.ID
		res.Categories++
	}

	for _, e := range f.Expeditions {
		exp, err := s.Expeditions.Create(ctx, service.ExpeditionInput{
			Name:             e.Name,
			DefaultUnitPrice: e.DefaultUnitPrice,
			InsuranceLimit:   e.InsuranceLimit,
		})
		if err != nil {
			return res, fmt.Errorf("expedition %q: %w", e.Name, err)
		}
		res.Expeditions++

		for _, p := range e.Packages {
			if err := s.seedPackage(ctx, exp.ID, p, clients, categories, res); err != nil {
				return res, fmt.Errorf("expedition %q package %q: %w", e.Name, p.Number, err)
			}
		}
	}

	return res, nil
}

func (s *Seeder) seedPackage(ctx context.Context, expeditionID string, p PackageFixture, clients, categories map[string]string, res *SeedResult) error {
	clientID, ok := clients[p.Client]
	if !ok {
		return fmt.Errorf("%w: unknown client key %q", entity.ErrInvalidInput, p.Client)
	}
	categoryID, ok := categories[p.Category]
	if !ok {
		return fmt.Errorf("%w: unknown category key %q", entity.ErrInvalidInput, p.Category)
	}

	pkg, err := s.Packages.Create(ctx, s.Actor, service.CreatePackageInput{
		ExpeditionID:    expeditionID,
		ClientID:        clientID,
		CategoryID:      categoryID,
		Number:          p.Number,
		DiscountPercent: p.DiscountPercent,
		TaxPercent:      p.TaxPercent,
		UnitPriceFine:   p.UnitPriceFine,
	})
	if err != nil {
		return err
	}
	res.Packages++

	for _, l := range p.Lines {
		if _, err := s.Packages.AddLine(ctx, s.Actor, pkg.ID, l.Bruto, l.Ley); err != nil {
			return err
		}
		res.Lines++
	}

	if p.Status != "" {
		if _, err := s.Packages.SetStatus(ctx, s.Actor, pkg.ID, p.Status); err != nil {
			return err
		}
	}
	return nil
}

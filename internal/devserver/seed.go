package devserver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/pulsedash/pulse/internal/api"
)

// Seed describes the demo data loaded at startup: users with plaintext demo
// passwords (hashed on apply) and one metrics overview per period.
type Seed struct {
	Users   []SeedUser    `yaml:"users"`
	Metrics []SeedMetrics `yaml:"metrics"`
}

type SeedUser struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
	Password    string `yaml:"password"`
}

type SeedMetrics struct {
	Period       string        `yaml:"period"`
	Balance      SeedBalance   `yaml:"balance"`
	Ranking      []SeedKPI     `yaml:"ranking"`
	Distribution []SeedSegment `yaml:"distribution"`
}

type SeedBalance struct {
	Currency string  `yaml:"currency"`
	Income   float64 `yaml:"income"`
	Expenses float64 `yaml:"expenses"`
}

type SeedKPI struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
	Unit  string  `yaml:"unit"`
	Delta float64 `yaml:"delta"`
}

type SeedSegment struct {
	Label string  `yaml:"label"`
	Share float64 `yaml:"share"`
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("seed validation: %w", err)
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	for i, u := range s.Users {
		if u.Email == "" {
			return fmt.Errorf("users[%d]: email is required", i)
		}
		if u.Password == "" {
			return fmt.Errorf("users[%d] (%s): password is required", i, u.Email)
		}
	}
	for i, m := range s.Metrics {
		if m.Period == "" {
			return fmt.Errorf("metrics[%d]: period is required", i)
		}
		for j, seg := range m.Distribution {
			if seg.Share < 0 || seg.Share > 1 {
				return fmt.Errorf("metrics[%d].distribution[%d] (%s): share must be in 0..1, got %v",
					i, j, seg.Label, seg.Share)
			}
		}
	}
	return nil
}

// DefaultSeed is the built-in demo data used when no seed file is configured.
func DefaultSeed() *Seed {
	return &Seed{
		Users: []SeedUser{
			{
				Email:       "demo@pulse.local",
				DisplayName: "Demo Owner",
				Role:        "owner",
				Password:    "pulse-demo",
			},
		},
		Metrics: []SeedMetrics{
			{
				Period:  time.Now().UTC().Format("2006-01"),
				Balance: SeedBalance{Currency: "EUR", Income: 48230.50, Expenses: 31940.25},
				Ranking: []SeedKPI{
					{Name: "New customers", Value: 87, Delta: 12},
					{Name: "Avg order", Value: 64.20, Unit: "EUR", Delta: -3.4},
					{Name: "Repeat rate", Value: 41.5, Unit: "%", Delta: 2.1},
				},
				Distribution: []SeedSegment{
					{Label: "Online store", Share: 0.52},
					{Label: "In person", Share: 0.33},
					{Label: "Wholesale", Share: 0.15},
				},
			},
		},
	}
}

// Overview converts one seed entry to its wire shape.
func (m SeedMetrics) Overview() api.MetricsOverview {
	o := api.MetricsOverview{
		Period: m.Period,
		Balance: api.Balance{
			Currency: m.Balance.Currency,
			Income:   m.Balance.Income,
			Expenses: m.Balance.Expenses,
			Net:      m.Balance.Income - m.Balance.Expenses,
		},
	}
	for _, kpi := range m.Ranking {
		o.Ranking = append(o.Ranking, api.KPI{
			Name:  kpi.Name,
			Value: kpi.Value,
			Unit:  kpi.Unit,
			Delta: kpi.Delta,
		})
	}
	for _, seg := range m.Distribution {
		o.Distribution = append(o.Distribution, api.Segment{
			Label: seg.Label,
			Share: seg.Share,
		})
	}
	return o
}

// Apply hashes passwords and writes the seed into the store. Users are
// upserted by email and metrics replaced per period, so reapplying the same
// seed on every start is harmless.
func (s *Seed) Apply(ctx context.Context, users *UserStore, metrics *MetricsStore) error {
	for _, u := range s.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", u.Email, err)
		}
		role := u.Role
		if role == "" {
			role = "owner"
		}
		err = users.Upsert(ctx, User{
			Email:        strings.ToLower(strings.TrimSpace(u.Email)),
			DisplayName:  u.DisplayName,
			Role:         role,
			PasswordHash: string(hash),
		})
		if err != nil {
			return err
		}
	}
	for _, m := range s.Metrics {
		if err := metrics.Replace(ctx, m.Overview()); err != nil {
			return err
		}
	}
	return nil
}

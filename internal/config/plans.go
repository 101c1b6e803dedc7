package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan describes a purchasable premium offering and how it maps onto each
// payment provider's catalog.
type Plan struct {
	Code           string `mapstructure:"code"`
	Name           string `mapstructure:"name"`
	PeriodDays     int    `mapstructure:"periodDays"`
	StripePriceID  string `mapstructure:"stripePriceId"`
	LemonVariantID string `mapstructure:"lemonVariantId"`
}

// PlanCatalog holds the recognized plans.
type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []Plan{
			{Code: "premium_monthly", Name: "Premium Monthly", PeriodDays: 30},
			{Code: "premium_yearly", Name: "Premium Yearly", PeriodDays: 365},
		},
	}
}

// Find returns the plan with the given code, or nil.
func (c PlanCatalog) Find(code string) *Plan {
	code = strings.ToLower(strings.TrimSpace(code))
	for i := range c.Plans {
		if strings.ToLower(c.Plans[i].Code) == code {
			return &c.Plans[i]
		}
	}
	return nil
}

// PlanCatalogHolder serves the current plan catalog and hot-reloads it when
// the backing file changes.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/parlo/config")
	v.AddConfigPath("/etc/parlo")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARLO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlanCatalog()
		v.SetDefault("plans", defaults.Plans)
	}

	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return nil, err
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[plan-catalog] reload failed: %v", err)
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			log.Printf("[plan-catalog] invalid catalog ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-catalog] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog, with no file watching.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) (*PlanCatalogHolder, error) {
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	for _, plan := range catalog.Plans {
		if strings.TrimSpace(plan.Code) == "" {
			return errors.New("plan code cannot be empty")
		}
	}
	return nil
}

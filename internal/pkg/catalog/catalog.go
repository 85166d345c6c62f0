package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/qs3c/madrasah_billing_server/config"
)

const (
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

var ErrInvalidPlan = errors.New("invalid plan configuration")

// 套餐等级，数值越大价值越高
var planRanks = map[string]int{
	PlanBasic:      1,
	PlanPro:        2,
	PlanEnterprise: 3,
}

// Plan 套餐定价快照
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
	Rank       int    `json:"rank"`
}

// Catalog 启动时加载的只读套餐目录
type Catalog struct {
	plans   map[string]Plan
	ordered []Plan
}

func New(cfg config.BillingConfig) (*Catalog, error) {
	if len(cfg.Plans) == 0 {
		return nil, fmt.Errorf("%w: no plans configured", ErrInvalidPlan)
	}

	c := &Catalog{plans: make(map[string]Plan, len(cfg.Plans))}
	for rawID, pc := range cfg.Plans {
		id := normalize(rawID)
		rank, ok := planRanks[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown plan id %q", ErrInvalidPlan, rawID)
		}
		if pc.PriceMinor <= 0 {
			return nil, fmt.Errorf("%w: plan %q must have a positive price", ErrInvalidPlan, id)
		}

		currency := strings.ToUpper(strings.TrimSpace(pc.Currency))
		if currency == "" {
			currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
		}
		if currency == "" {
			return nil, fmt.Errorf("%w: plan %q has no currency", ErrInvalidPlan, id)
		}

		name := pc.Name
		if name == "" {
			name = strings.ToUpper(id[:1]) + id[1:]
		}

		plan := Plan{ID: id, Name: name, PriceMinor: pc.PriceMinor, Currency: currency, Rank: rank}
		c.plans[id] = plan
		c.ordered = append(c.ordered, plan)
	}

	sort.Slice(c.ordered, func(i, j int) bool {
		return c.ordered[i].Rank < c.ordered[j].Rank
	})

	return c, nil
}

// Lookup 按套餐标识查找，忽略大小写和首尾空白
func (c *Catalog) Lookup(id string) (Plan, bool) {
	plan, ok := c.plans[normalize(id)]
	return plan, ok
}

// List 按等级升序返回全部套餐
func (c *Catalog) List() []Plan {
	out := make([]Plan, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

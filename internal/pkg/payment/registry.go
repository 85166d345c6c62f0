package payment

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/qs3c/madrasah_billing_server/config"
)

// Registry 渠道名到适配器的映射，构建后只读
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// NewRegistryFromConfig 按配置创建已启用的渠道
func NewRegistryFromConfig(cfg config.ProvidersConfig, client *http.Client) (*Registry, error) {
	var providers []Provider

	if cfg.GatewayA.Enabled {
		providers = append(providers, NewGatewayA(cfg.GatewayA, client))
	}
	if cfg.GatewayB.Enabled {
		b, err := NewGatewayB(cfg.GatewayB, client)
		if err != nil {
			return nil, fmt.Errorf("failed to init gateway_b: %w", err)
		}
		providers = append(providers, b)
	}

	return NewRegistry(providers...), nil
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names 已注册的渠道名（排序后）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

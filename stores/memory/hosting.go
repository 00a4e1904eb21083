package memory

import (
	"context"
	"fmt"
	"sync"

	"polotno-studio/core"
)

type ownedSite struct {
	core.Site
	owner string
}

// Hosting is an in-process site registry shared by every account of the process.
type Hosting struct {
	mu    sync.Mutex
	sites map[string]ownedSite
	order []string
	// Fail makes Create reject the named subdomains, for exercising retries.
	Fail map[string]bool
}

func NewHosting() *Hosting {
	return &Hosting{sites: make(map[string]ownedSite)}
}

func (h *Hosting) List(ctx context.Context, owner string) ([]core.Site, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sites := make([]core.Site, 0)
	for _, name := range h.order {
		if site := h.sites[name]; site.owner == owner {
			sites = append(sites, site.Site)
		}
	}
	return sites, nil
}

func (h *Hosting) Create(ctx context.Context, owner, subdomain, dir string) (core.Site, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Fail[subdomain] {
		return core.Site{}, fmt.Errorf("create %s: %w", subdomain, core.ErrSubdomainTaken)
	}
	if _, ok := h.sites[subdomain]; ok {
		return core.Site{}, fmt.Errorf("create %s: %w", subdomain, core.ErrSubdomainTaken)
	}
	site := core.Site{Subdomain: subdomain, Dir: dir}
	h.sites[subdomain] = ownedSite{Site: site, owner: owner}
	h.order = append(h.order, subdomain)
	return site, nil
}

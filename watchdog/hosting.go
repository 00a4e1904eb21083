package watchdog

import (
	"context"

	"polotno-studio/core"
)

type guardedHosting struct {
	hosting core.Hosting
	w       *Watchdog
}

// WrapHosting guards the site registry calls of hosting.
func WrapHosting(hosting core.Hosting, w *Watchdog) core.Hosting {
	return &guardedHosting{hosting: hosting, w: w}
}

func (g *guardedHosting) List(ctx context.Context, owner string) ([]core.Site, error) {
	var sites []core.Site
	err := g.w.Guard(ctx, "list-sites", []any{owner}, func() error {
		var err error
		sites, err = g.hosting.List(ctx, owner)
		return err
	})
	return sites, err
}

func (g *guardedHosting) Create(ctx context.Context, owner, subdomain, dir string) (core.Site, error) {
	var site core.Site
	err := g.w.Guard(ctx, "create-site", []any{owner, subdomain, dir}, func() error {
		var err error
		site, err = g.hosting.Create(ctx, owner, subdomain, dir)
		return err
	})
	return site, err
}

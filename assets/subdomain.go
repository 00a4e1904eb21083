package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"polotno-studio/core"
	"polotno-studio/stores"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const maxProvisionAttempts = 10

// ErrProvisioningExhausted is returned when no subdomain could be created.
var ErrProvisioningExhausted = errors.New("could not provision a hosting subdomain")

// Provisioner finds or creates the public subdomain of each account. Concurrent
// callers for one account share a single attempt, which outlives the
// cancellation of whichever caller started it. A success is cached for the
// life of the provisioner; a failure is not, so the next call tries again.
type Provisioner struct {
	hosting core.Hosting
	fs      core.FileSystem
	dir     string

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]string
}

func NewProvisioner(hosting core.Hosting, fs core.FileSystem, dir string) *Provisioner {
	return &Provisioner{
		hosting: hosting,
		fs:      fs,
		dir:     dir,
		cache:   make(map[string]string),
	}
}

func (p *Provisioner) cached(subject string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.cache[subject]
	return sub, ok
}

// Subdomain returns the account's subdomain, provisioning it on first use.
func (p *Provisioner) Subdomain(ctx context.Context, user core.User) (string, error) {
	if sub, ok := p.cached(user.Subject); ok {
		return sub, nil
	}

	shared := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(user.Subject, func() (any, error) {
		if sub, ok := p.cached(user.Subject); ok {
			return sub, nil
		}
		sub, err := p.provision(shared, user)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.cache[user.Subject] = sub
		p.mu.Unlock()
		return sub, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Forget drops the cached subdomain of subject.
func (p *Provisioner) Forget(subject string) {
	p.mu.Lock()
	delete(p.cache, subject)
	p.mu.Unlock()
}

func (p *Provisioner) provision(ctx context.Context, user core.User) (string, error) {
	log := logrus.WithField("user", user.Subject)

	sites, err := p.hosting.List(ctx, user.Subject)
	if err != nil {
		return "", fmt.Errorf("list sites: %w", err)
	}
	prefix := SubdomainPrefix(user)
	for _, site := range sites {
		if ownsPrefix(site.Subdomain, prefix) {
			log.WithField("subdomain", site.Subdomain).Info("Reusing hosting subdomain")
			return site.Subdomain, nil
		}
	}

	// Mkdir goes through the account-scoped store, so the site serves the
	// same directory under the account's key prefix.
	dir := stores.UserPrefix(user.Subject) + p.dir
	var lastErr error
	for attempt := 1; attempt <= maxProvisionAttempts; attempt++ {
		name := prefix
		if attempt > 1 {
			name = fmt.Sprintf("%s-%d", prefix, attempt)
		}
		if attempt == 1 {
			if err := p.fs.Mkdir(ctx, p.dir, true); err != nil {
				log.WithError(err).Warn("Failed to create upload directory")
			}
		}

		site, err := p.hosting.Create(ctx, user.Subject, name, dir)
		if err == nil {
			log.WithField("subdomain", site.Subdomain).Info("Created hosting subdomain")
			return site.Subdomain, nil
		}
		log.WithError(err).WithField("subdomain", name).Debug("Subdomain attempt failed")
		lastErr = err
	}
	return "", fmt.Errorf("%w after %d attempts: %v", ErrProvisioningExhausted, maxProvisionAttempts, lastErr)
}

// ownsPrefix matches prefix itself and the numbered retries prefix-2, prefix-3...
func ownsPrefix(subdomain, prefix string) bool {
	if subdomain == prefix {
		return true
	}
	n, ok := strings.CutPrefix(subdomain, prefix+"-")
	if !ok || n == "" {
		return false
	}
	for _, r := range n {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SubdomainPrefix derives the subdomain prefix from the account's login.
func SubdomainPrefix(user core.User) string {
	name := user.Login
	if name == "" {
		name = user.Subject
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 40 {
		slug = strings.TrimSuffix(slug[:40], "-")
	}
	if slug == "" {
		slug = "user"
	}
	return "studio-" + slug
}

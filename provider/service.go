package provider

import "context"

// Reader abstracts repository operations for the directory.
type Reader interface {
	GetBySlug(ctx context.Context, slug string) (Provider, error)
	ListActive(ctx context.Context, limit int) ([]Provider, error)
}

// Directory exposes provider resolution to the rest of the system. It
// replaces any compile-time slug-to-id table.
type Directory struct {
	repo Reader
}

func NewDirectory(repo Reader) *Directory {
	return &Directory{repo: repo}
}

// Resolve returns the provider for the given slug.
func (d *Directory) Resolve(ctx context.Context, slug string) (Provider, error) {
	return d.repo.GetBySlug(ctx, slug)
}

// ListActive returns up to limit active providers.
func (d *Directory) ListActive(ctx context.Context, limit int) ([]Provider, error) {
	return d.repo.ListActive(ctx, limit)
}

// DefaultLang returns the provider's stored language preference, empty when
// none is set. Satisfies the locale resolver's provider-default lookup.
func (d *Directory) DefaultLang(ctx context.Context, slug string) (string, error) {
	p, err := d.repo.GetBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	return p.LangPref, nil
}

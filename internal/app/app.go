// Package app wires together configuration, the API client, and the local
// store into a single Deps struct that commands receive at runtime.
package app

import (
	"fmt"

	"github.com/derickschaefer/filings/internal/config"
	"github.com/derickschaefer/filings/internal/download"
	"github.com/derickschaefer/filings/internal/query"
	"github.com/derickschaefer/filings/internal/store"
	"github.com/derickschaefer/filings/internal/xbrlapi"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil until RequireStore opens it.
type Deps struct {
	Config *config.Config
	Client *xbrlapi.Client
	Store  *store.Store
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) *Deps {
	client := xbrlapi.NewClient(
		cfg.BaseURL,
		cfg.Timeout,
		cfg.Rate,
		cfg.Debug,
	)
	return &Deps{
		Config: cfg,
		Client: client,
	}
}

// Engine returns a query engine over the API client.
func (d *Deps) Engine() *query.Engine {
	return &query.Engine{Transport: d.Client, Options: d.Config.FilterOptions()}
}

// Downloader returns a download pool sized by the configured concurrency.
func (d *Deps) Downloader() (*download.Downloader, error) {
	return download.New(d.Client, d.Config.Concurrency)
}

// RequireStore opens the local database at Config.DBPath.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	d.Store = s
	return nil
}

// Close releases the store if it was opened.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}

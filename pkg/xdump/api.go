package xdump

import (
	"io"
	"sync"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// Engine provides the main API: preparing templates and opening sessions
// over a store. Use New() to create an engine.
type Engine struct {
	config *Config
	cache  *TemplateCache
	logger *Logger
}

// Option represents a configuration option for the engine.
type Option func(*Engine)

// WithConfig returns an option that sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		e.config = NewConfigWithDefaults(config)
	}
}

// WithLogger returns an option that sets the engine logger.
func WithLogger(logger *Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCache returns an option that sets the template cache; nil disables
// caching.
func WithCache(cache *TemplateCache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// New creates an engine from the global configuration.
func New(opts ...Option) *Engine {
	e := &Engine{config: GetGlobalConfig()}
	e.cache = NewTemplateCacheWithConfig(CacheConfig{MaxSize: e.config.CacheMaxSize, TTL: e.config.CacheTTL})
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = GetLogger()
	}
	return e
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Prepare parses and validates a template.
func (e *Engine) Prepare(r io.Reader) (*Template, error) {
	return ParseTemplate(r)
}

// PrepareFile loads a template from a file path, through the cache when
// caching is enabled.
func (e *Engine) PrepareFile(path string) (*Template, error) {
	if e.cache != nil {
		if tmpl, ok := e.cache.Get(path); ok {
			e.logger.Debug("template %s served from cache", path)
			return tmpl, nil
		}
	}
	tmpl, err := ParseTemplateFile(path)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(path, tmpl)
	}
	return tmpl, nil
}

// ClearCache removes all templates from the cache.
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// NewSession builds the catalog, custom-field registry and resolver table
// for rendering or updating with tmpl over st.
func (e *Engine) NewSession(tmpl *Template, st store.Store, opts ...SessionOption) (*Session, error) {
	return newSession(tmpl, st, e.config, e.logger, opts...)
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// DefaultEngine returns the engine used by the package-level functions.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = New()
	})
	return defaultEngine
}

// Render renders root with the default engine.
func Render(w io.Writer, root store.Handle, tmpl *Template, st store.Store, filters ...Filter) error {
	s, err := DefaultEngine().NewSession(tmpl, st, WithFilters(filters...))
	if err != nil {
		return err
	}
	return s.Render(w, root, "")
}

// ApplyChanges patches doc with the default engine.
func ApplyChanges(changes []Change, doc *xml.Document, tmpl *Template, st store.Store) (*xml.Document, error) {
	s, err := DefaultEngine().NewSession(tmpl, st)
	if err != nil {
		return doc, err
	}
	return s.ApplyChanges(changes, doc)
}

// PrepareFile loads a template with the default engine.
func PrepareFile(path string) (*Template, error) {
	return DefaultEngine().PrepareFile(path)
}

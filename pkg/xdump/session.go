package xdump

import (
	"sync/atomic"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/render"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

// Progress describes a rule marked with progress="true" as it is visited.
type Progress struct {
	Rule   *Rule
	Object store.Handle
	Class  string
}

// ProgressFunc receives progress notifications.
type ProgressFunc func(Progress)

// Session holds everything built once per render or update: the catalog, the
// custom-field registry and the resolver table. A session is single-threaded
// except for Cancel, which may be called from any goroutine.
type Session struct {
	tmpl     *Template
	st       store.Store
	config   *Config
	logger   *Logger
	custom   *CustomRegistry
	catalog  *Catalog
	resolver *Resolver
	norm     render.Normalizer
	filters  []Filter
	progress ProgressFunc
	flags    map[string]bool
	canceled atomic.Bool
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithFilters appends inclusion filters, consulted in order.
func WithFilters(filters ...Filter) SessionOption {
	return func(s *Session) {
		s.filters = append(s.filters, filters...)
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) SessionOption {
	return func(s *Session) {
		s.progress = fn
	}
}

// WithFlags sets session variable flags in addition to Config.Flags.
func WithFlags(flags ...string) SessionOption {
	return func(s *Session) {
		for _, f := range flags {
			s.flags[f] = true
		}
	}
}

func newSession(tmpl *Template, st store.Store, config *Config, logger *Logger, opts ...SessionOption) (*Session, error) {
	if tmpl == nil {
		return nil, NewTemplateError("no template", "", nil)
	}
	config = NewConfigWithDefaults(config)
	if logger == nil {
		logger = GetLogger()
	}

	norm := tmpl.Normalization()
	if config.Normalization != "" {
		n, err := render.ParseNormalization(config.Normalization)
		if err != nil {
			return nil, NewConfigurationError("", "", "", err.Error())
		}
		norm = n
	}

	custom := NewCustomRegistry(st)
	s := &Session{
		tmpl:     tmpl,
		st:       st,
		config:   config,
		logger:   logger.WithField("format", tmpl.Format().String()),
		custom:   custom,
		catalog:  NewCatalog(tmpl, st, custom, config.StrictMode),
		resolver: NewResolver(st, custom),
		norm:     norm,
		flags:    make(map[string]bool),
	}
	for _, f := range config.Flags {
		s.flags[f] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("session ready: %d custom fields, normalization %s", custom.Len(), norm.Name())
	return s, nil
}

// Cancel asks an in-flight render to stop at the next object or rule.
func (s *Session) Cancel() {
	s.canceled.Store(true)
}

// Canceled reports whether Cancel was called.
func (s *Session) Canceled() bool {
	return s.canceled.Load()
}

// Catalog returns the session's class-rule catalog.
func (s *Session) Catalog() *Catalog {
	return s.catalog
}

// Resolver returns the session's property resolver.
func (s *Session) Resolver() *Resolver {
	return s.resolver
}

// Template returns the session's template.
func (s *Session) Template() *Template {
	return s.tmpl
}

func (s *Session) notify(rule *Rule, obj store.Handle, class string) {
	if s.progress != nil && rule.progress() {
		s.progress(Progress{Rule: rule, Object: obj, Class: class})
	}
}

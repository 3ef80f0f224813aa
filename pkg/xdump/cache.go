package xdump

import (
	"container/list"
	"errors"
	"io"
	"sync"
	"time"
)

// CacheConfig contains configuration options for the template cache
type CacheConfig struct {
	// MaxSize is the maximum number of templates to cache. 0 disables caching.
	MaxSize int
	// TTL is the time-to-live for cached templates. 0 means no expiration.
	TTL time.Duration
}

// TemplateCache keeps parsed templates by key, evicting the least recently
// used once full. Templates are immutable, so cached values are shared.
type TemplateCache struct {
	mu     sync.Mutex
	cache  map[string]*list.Element
	lru    *list.List
	config CacheConfig
	now    func() time.Time
}

type cacheEntry struct {
	key      string
	template *Template
	expiry   time.Time
}

// NewTemplateCache creates a new template cache from the global configuration
func NewTemplateCache() *TemplateCache {
	config := GetGlobalConfig()
	return NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: config.CacheMaxSize,
		TTL:     config.CacheTTL,
	})
}

// NewTemplateCacheWithConfig creates a new template cache with the given configuration
func NewTemplateCacheWithConfig(config CacheConfig) *TemplateCache {
	return &TemplateCache{
		cache:  make(map[string]*list.Element),
		lru:    list.New(),
		config: config,
		now:    time.Now,
	}
}

// Prepare returns the cached template for key, parsing reader on a miss.
func (tc *TemplateCache) Prepare(reader io.Reader, key string) (*Template, error) {
	if tmpl, ok := tc.Get(key); ok {
		return tmpl, nil
	}
	if reader == nil {
		return nil, errors.New("template not in cache and no reader provided")
	}
	tmpl, err := ParseTemplate(reader)
	if err != nil {
		return nil, err
	}
	tc.Set(key, tmpl)
	return tmpl, nil
}

// Get retrieves a template without parsing a new one
func (tc *TemplateCache) Get(key string) (*Template, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	el, ok := tc.cache[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if tc.config.TTL > 0 && tc.now().After(entry.expiry) {
		tc.removeElement(el)
		return nil, false
	}
	tc.lru.MoveToFront(el)
	return entry.template, true
}

// Set adds a template to the cache
func (tc *TemplateCache) Set(key string, template *Template) {
	if tc.config.MaxSize == 0 {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	var expiry time.Time
	if tc.config.TTL > 0 {
		expiry = tc.now().Add(tc.config.TTL)
	}

	if el, ok := tc.cache[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.template = template
		entry.expiry = expiry
		tc.lru.MoveToFront(el)
		return
	}

	for tc.lru.Len() >= tc.config.MaxSize {
		tc.removeElement(tc.lru.Back())
	}
	tc.cache[key] = tc.lru.PushFront(&cacheEntry{key: key, template: template, expiry: expiry})
}

func (tc *TemplateCache) removeElement(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(tc.cache, entry.key)
	tc.lru.Remove(el)
}

// Remove removes a template from the cache
func (tc *TemplateCache) Remove(key string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if el, ok := tc.cache[key]; ok {
		tc.removeElement(el)
	}
}

// Clear removes all templates from the cache
func (tc *TemplateCache) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.cache = make(map[string]*list.Element)
	tc.lru = list.New()
}

// Size returns the current number of cached templates
func (tc *TemplateCache) Size() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.cache)
}

package repository

import (
	"sync"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type options struct {
	serverSort bool
	redis      *redis.Client
}

// Option configures NewRepositories.
type Option func(*options)

// WithServerSort toggles ORDER BY on the database. When disabled, newest-first
// listings read unsorted rows and sort them in memory.
func WithServerSort(enabled bool) Option {
	return func(o *options) {
		o.serverSort = enabled
	}
}

// WithRedis sets the client used by the queue repository.
func WithRedis(client *redis.Client) Option {
	return func(o *options) {
		o.redis = client
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	opts  []Option
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB, opts ...Option) *Factory {
	return &Factory{
		db:   db,
		opts: opts,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db, f.opts...)
	})
	return f.repos
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB, opts ...Option) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db, opts...)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}

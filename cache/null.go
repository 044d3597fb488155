package cache

import (
	"context"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// Null is the disabled cache: every get misses, every set succeeds without
// storing. It is semantically valid wherever gromozeka.Cache is expected.
type Null struct{}

var _ gromozeka.Cache = Null{}

func (Null) Get(context.Context, any) (any, bool)                        { return nil, false }
func (Null) GetWithTTL(context.Context, any, time.Duration) (any, bool)  { return nil, false }
func (Null) Set(context.Context, any, any) bool                          { return true }
func (Null) Clear(context.Context) error                                 { return nil }
func (Null) Stats(context.Context) gromozeka.CacheStats {
	return gromozeka.CacheStats{Enabled: false}
}

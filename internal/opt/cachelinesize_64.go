//go:build rwspinlock_cachelinesize_64

package opt

// CacheLineSize forced to 64 bytes via build tag, for targets where the
// autodetected value is wrong or padding budget matters.
const CacheLineSize = 64

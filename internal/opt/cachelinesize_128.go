//go:build rwspinlock_cachelinesize_128

package opt

// CacheLineSize forced to 128 bytes via build tag (e.g. Apple silicon, POWER).
const CacheLineSize = 128

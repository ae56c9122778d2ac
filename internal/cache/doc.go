// Package cache provides a small generic LRU cache.
//
// Values are shared between callers. Store only values that are never
// mutated after creation, such as filter kernels and SPIR-V programs.
//
//	c := cache.New[string, []uint32](8)
//	words, err := c.GetOrCreate("builtin", compile)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache

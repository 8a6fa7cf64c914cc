// Package cache provides a small generic LRU used to keep recently decoded
// originals in memory.
//
// A reveal usually shows a photo once, but a catalog smaller than the
// preload batch makes the sampler return the same index repeatedly. Keeping
// the decoded original around turns those repeats into a resize only.
//
//	c := cache.New[string, image.Image](32)
//	img, err := c.GetOrLoad(path, decode)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache

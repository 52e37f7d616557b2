// Package cache provides the bounded in-memory layer that sits in front of
// pipeline cache files.
//
//	c := cache.New[string, []byte](64)
//	c.Set("forward.fpc", blob)
//	blob, ok := c.Get("forward.fpc")
//
// All methods are safe for concurrent use.
package cache

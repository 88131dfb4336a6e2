// Package cache provides small bounded in-memory structures shared by the
// messaging components.
package cache

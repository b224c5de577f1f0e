// Package ecs implements an archetypal entity-component-system storage
// engine: entities are grouped by component composition into chunked,
// struct-of-arrays storage, and structural changes can be deferred
// through thread-local command buffers for safe concurrent production.
package ecs

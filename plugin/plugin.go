// Package plugin defines the two capability hooks the module graph consults
// before touching the filesystem: ResolveID and Load.
package plugin

import "context"

// Resolver maps an import specifier written in importer to a module path.
// ok is false when the plugin has no opinion.
type Resolver interface {
	ResolveID(ctx context.Context, specifier, importer string) (path string, ok bool)
}

// Loader supplies the content of a module, typically virtual or generated.
// ok is false when the plugin does not provide this module.
type Loader interface {
	Load(ctx context.Context, path, id string) (content []byte, ok bool)
}

// Plugin is the capability set the graph consumes. Either hook may be a no-op.
type Plugin interface {
	Resolver
	Loader
}

// None is the plugin that never resolves and never loads.
var None Plugin = noop{}

type noop struct{}

func (noop) ResolveID(context.Context, string, string) (string, bool) { return "", false }
func (noop) Load(context.Context, string, string) ([]byte, bool)     { return nil, false }

// Funcs adapts plain functions into a Plugin. Nil fields behave as no-ops.
type Funcs struct {
	Resolve func(ctx context.Context, specifier, importer string) (string, bool)
	LoadFn  func(ctx context.Context, path, id string) ([]byte, bool)
}

// ResolveID implements Resolver.
func (f Funcs) ResolveID(ctx context.Context, specifier, importer string) (string, bool) {
	if f.Resolve == nil {
		return "", false
	}
	return f.Resolve(ctx, specifier, importer)
}

// Load implements Loader.
func (f Funcs) Load(ctx context.Context, path, id string) ([]byte, bool) {
	if f.LoadFn == nil {
		return nil, false
	}
	return f.LoadFn(ctx, path, id)
}

// Chain consults plugins in order; the first one with an answer wins.
type Chain []Plugin

// ResolveID implements Resolver.
func (c Chain) ResolveID(ctx context.Context, specifier, importer string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if path, ok := p.ResolveID(ctx, specifier, importer); ok {
			return path, true
		}
	}
	return "", false
}

// Load implements Loader.
func (c Chain) Load(ctx context.Context, path, id string) ([]byte, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if content, ok := p.Load(ctx, path, id); ok {
			return content, true
		}
	}
	return nil, false
}

// Virtual serves fixed in-memory modules. Specifiers matching a key resolve to
// that key verbatim and Load returns the stored content.
type Virtual map[string][]byte

// ResolveID implements Resolver.
func (v Virtual) ResolveID(_ context.Context, specifier, _ string) (string, bool) {
	if _, ok := v[specifier]; ok {
		return specifier, true
	}
	return "", false
}

// Load implements Loader.
func (v Virtual) Load(_ context.Context, path, _ string) ([]byte, bool) {
	content, ok := v[path]
	return content, ok
}

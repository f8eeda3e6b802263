package library

import (
	"fmt"
	"io"
	"plugin"

	"go.uber.org/multierr"
)

// CreateSymbol is the exported factory a plugin library must provide:
//
//	var CreateLibrary library.Factory = ...
//
// or a func with the Factory signature.
const CreateSymbol = "CreateLibrary"

// Open loads a Go plugin and resolves its factory.
func Open(path string) (Factory, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("library: open plugin (%s): %w", path, err)
	}
	sym, err := p.Lookup(CreateSymbol)
	if err != nil {
		return nil, fmt.Errorf("library: plugin %s: %w", path, err)
	}
	return factoryOf(sym)
}

func factoryOf(sym any) (Factory, error) {
	switch f := sym.(type) {
	case func(Env) (Library, error):
		return f, nil
	case Factory:
		return f, nil
	case *Factory:
		if f == nil || *f == nil {
			return nil, fmt.Errorf("library: %s is nil", CreateSymbol)
		}
		return *f, nil
	case *func(Env) (Library, error):
		if f == nil || *f == nil {
			return nil, fmt.Errorf("library: %s is nil", CreateSymbol)
		}
		return *f, nil
	default:
		return nil, fmt.Errorf("library: %s has type %T", CreateSymbol, sym)
	}
}

// Resolve finds the factory for name: a registered built-in first, then the
// plugin at path.
func Resolve(name, path string) (Factory, error) {
	if f, ok := Lookup(name); ok {
		return f, nil
	}
	if path == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLibrary, name)
	}
	return Open(path)
}

// Create builds an unloaded instance of name bound to env.
func Create(name string, f Factory, env Env) (*Instance, error) {
	lib, err := f(env)
	if err != nil {
		return nil, fmt.Errorf("library: create %q: %w", name, err)
	}
	if lib == nil {
		return nil, fmt.Errorf("%w: %q", ErrNilLibrary, name)
	}
	return NewInstance(name, lib, env.Log), nil
}

// Destroy unloads inst if it is still loaded and releases the library if
// it implements io.Closer.
func Destroy(inst *Instance) error {
	if inst == nil {
		return nil
	}
	var err error
	if inst.State() == StateLoaded {
		err = multierr.Append(err, inst.Unload())
	}
	if c, ok := inst.lib.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

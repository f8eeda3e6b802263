package library

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a built-in library available by name.
func Register(name string, f Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || f == nil {
		return fmt.Errorf("library: register requires a name and factory")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		return fmt.Errorf("%w: %q", ErrFactoryExists, name)
	}
	factories[name] = f
	return nil
}

// MustRegister is Register for package init blocks.
func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

func Lookup(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

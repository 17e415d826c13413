package source

import "sync"

// Plugins are compiled in rather than loaded dynamically: a source
// registers itself here (usually from an init function) and every
// loader starts with the builtin table.
var (
	builtinMu sync.Mutex
	builtins  = make(map[string]*Plugin)
)

// RegisterBuiltin adds a plugin to the process-wide table. Later
// registrations under the same name replace earlier ones.
func RegisterBuiltin(p *Plugin) {
	if p == nil || p.Name == "" {
		return
	}
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtins[p.Name] = p
}

// Builtins returns the registered plugins.
func Builtins() []*Plugin {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	out := make([]*Plugin, 0, len(builtins))
	for _, p := range builtins {
		out = append(out, p)
	}
	return out
}

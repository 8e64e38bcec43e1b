package ingress

import "sync"

// aliasTable remembers the alias -> metric-name mapping BIRTH messages
// establish for an edge node, so subsequent DATA frames that carry only an
// alias (no name) can still be resolved to an identity. Aliases are scoped
// per edge node (shared between its NBIRTH and any DBIRTH for its
// devices), per the Sparkplug-B convention.
type aliasTable struct {
	mu    sync.Mutex
	names map[string]map[uint64]string // "group|node" -> alias -> name
}

func newAliasTable() aliasTable {
	return aliasTable{names: make(map[string]map[uint64]string)}
}

func (a *aliasTable) register(group, node string, alias uint64, name string) {
	if name == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := group + "|" + node
	m, ok := a.names[key]
	if !ok {
		m = make(map[uint64]string)
		a.names[key] = m
	}
	m[alias] = name
}

// resolve returns the metric name for alias, if a BIRTH ever registered one.
func (a *aliasTable) resolve(group, node string, alias uint64) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.names[group+"|"+node]
	if !ok {
		return "", false
	}
	name, ok := m[alias]
	return name, ok
}

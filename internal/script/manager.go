// Package script maintains the ordered set of initialization scripts
// injected into each new page, including the two distinguished entries: the
// bridge bootstrap and the binding-registration script.
package script

// Engine is the slice of the host surface the manager needs. Handles are
// opaque engine-assigned tokens; equality is the engine's own notion of
// "same injected script", never content comparison.
type Engine interface {
	AddScript(source string) (interface{}, error)
	RemoveScript(handle interface{}) error
	SameScript(a, b interface{}) bool
}

type entry struct {
	code   string
	handle interface{}
}

// Manager tracks injected scripts in order. Not goroutine-safe; all calls
// must come from the dispatch loop.
type Manager struct {
	engine  Engine
	scripts []entry
	bind    interface{} // handle of the binding-registration script, nil until first bind
}

// NewManager creates a manager over the given engine.
func NewManager(engine Engine) *Manager {
	return &Manager{engine: engine}
}

// Add appends a script and returns its engine handle.
func (m *Manager) Add(code string) (interface{}, error) {
	handle, err := m.engine.AddScript(code)
	if err != nil {
		return nil, err
	}
	m.scripts = append(m.scripts, entry{code: code, handle: handle})
	return handle, nil
}

// Replace substitutes new source for the script identified by old,
// preserving the position of every other script. Engines generally cannot
// edit an injected script in place, so the whole list is removed and
// re-added in order; the target is located by engine handle identity.
func (m *Manager) Replace(old interface{}, code string) (interface{}, error) {
	for i := range m.scripts {
		if err := m.engine.RemoveScript(m.scripts[i].handle); err != nil {
			return nil, err
		}
	}

	var replaced interface{}
	for i := range m.scripts {
		isOld := m.engine.SameScript(m.scripts[i].handle, old)
		if isOld {
			m.scripts[i].code = code
		}
		handle, err := m.engine.AddScript(m.scripts[i].code)
		if err != nil {
			return nil, err
		}
		m.scripts[i].handle = handle
		if isOld {
			replaced = handle
		}
	}
	return replaced, nil
}

// SetBindScript installs or replaces the binding-registration script.
func (m *Manager) SetBindScript(code string) error {
	if m.bind == nil {
		handle, err := m.Add(code)
		if err != nil {
			return err
		}
		m.bind = handle
		return nil
	}
	handle, err := m.Replace(m.bind, code)
	if err != nil {
		return err
	}
	m.bind = handle
	return nil
}

// Len reports the number of tracked scripts.
func (m *Manager) Len() int { return len(m.scripts) }

// Sources returns the current script sources in injection order.
func (m *Manager) Sources() []string {
	out := make([]string, len(m.scripts))
	for i, s := range m.scripts {
		out[i] = s.code
	}
	return out
}

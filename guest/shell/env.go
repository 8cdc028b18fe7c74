package shell

import "os"

// ShellEnv holds shell variables, exported-variable flags, positional
// parameters, the last exit status, and the function table. A stack of
// local-variable scopes backs the "local" builtin: entering a function
// pushes a scope, and popping it restores whatever value (or absence) a
// variable had before the scope began.
type ShellEnv struct {
	vars        map[string]string
	exports     map[string]bool
	positional  []string
	LastStatus  int
	functions   map[string]Command
	localStack  []map[string]*string
}

// NewEnv builds a ShellEnv seeded from the process environment, matching
// the guest's ambient WASI environment at the time the shell starts.
func NewEnv() *ShellEnv {
	env := &ShellEnv{
		vars:      map[string]string{},
		exports:   map[string]bool{},
		functions: map[string]Command{},
	}

	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env.vars[kv[:i]] = kv[i+1:]
				env.exports[kv[:i]] = true

				break
			}
		}
	}

	return env
}

// Get looks up a plain variable name (not a special variable, handled
// separately by the expander).
func (e *ShellEnv) Get(name string) (string, bool) {
	v, ok := e.vars[name]

	return v, ok
}

// Set assigns a variable, recording its prior value in the innermost local
// scope the first time it is touched there.
func (e *ShellEnv) Set(name, value string) {
	if len(e.localStack) > 0 {
		scope := e.localStack[len(e.localStack)-1]
		if _, tracked := scope[name]; !tracked {
			if old, ok := e.vars[name]; ok {
				v := old
				scope[name] = &v
			} else {
				scope[name] = nil
			}
		}
	}

	e.vars[name] = value
}

// Unset removes a variable and its export flag.
func (e *ShellEnv) Unset(name string) {
	delete(e.vars, name)
	delete(e.exports, name)
}

// Export marks a variable exported, optionally assigning it first.
func (e *ShellEnv) Export(name string, value *string) {
	if value != nil {
		e.vars[name] = *value
	}

	e.exports[name] = true
}

// IsExported reports whether a variable is marked for export.
func (e *ShellEnv) IsExported(name string) bool {
	return e.exports[name]
}

// ExportedVars returns every exported NAME=value pair.
func (e *ShellEnv) ExportedVars() []string {
	var out []string

	for name := range e.exports {
		if v, ok := e.vars[name]; ok {
			out = append(out, name+"="+v)
		}
	}

	return out
}

// Positional returns the current positional parameters ($1, $2, ...).
func (e *ShellEnv) Positional() []string {
	return e.positional
}

// SetPositional replaces the positional parameters.
func (e *ShellEnv) SetPositional(args []string) {
	e.positional = args
}

// Shift drops the first n positional parameters.
func (e *ShellEnv) Shift(n int) {
	if n <= len(e.positional) {
		e.positional = e.positional[n:]
	} else {
		e.positional = nil
	}
}

// Function looks up a shell function definition by name.
func (e *ShellEnv) Function(name string) (Command, bool) {
	c, ok := e.functions[name]

	return c, ok
}

// DefineFunction registers a shell function.
func (e *ShellEnv) DefineFunction(name string, body Command) {
	e.functions[name] = body
}

// PushLocalScope starts a new local-variable scope, used when entering a
// function body so "local" assignments unwind on return.
func (e *ShellEnv) PushLocalScope() {
	e.localStack = append(e.localStack, map[string]*string{})
}

// PopLocalScope restores every variable touched in the innermost scope to
// its value (or absence) from before the scope began.
func (e *ShellEnv) PopLocalScope() {
	if len(e.localStack) == 0 {
		return
	}

	scope := e.localStack[len(e.localStack)-1]
	e.localStack = e.localStack[:len(e.localStack)-1]

	for name, old := range scope {
		if old == nil {
			delete(e.vars, name)
		} else {
			e.vars[name] = *old
		}
	}
}

// DeclareLocal marks name as local in the innermost scope without changing
// its current value, matching the "local NAME" (no assignment) form.
func (e *ShellEnv) DeclareLocal(name string) {
	if len(e.localStack) == 0 {
		return
	}

	scope := e.localStack[len(e.localStack)-1]
	if _, tracked := scope[name]; tracked {
		return
	}

	if old, ok := e.vars[name]; ok {
		v := old
		scope[name] = &v
	} else {
		scope[name] = nil
	}
}

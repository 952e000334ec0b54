package endpoint

import (
	"os"
	"runtime"
)

// Environment is the complete input to endpoint resolution.
type Environment struct {
	Platform string
	Env      map[string]string
	HomeDir  string
}

// Lookup returns the value of key, or "" when unset.
func (e Environment) Lookup(key string) string {
	if e.Env == nil {
		return ""
	}
	return e.Env[key]
}

// FromProcess snapshots the running process: runtime.GOOS, the variables the
// resolver consults and the user's home directory. A missing home directory
// leaves HomeDir empty; Default and ExpandHome report it when a path needs it.
func FromProcess() Environment {
	env := map[string]string{}
	for _, key := range []string{OverrideEnv, TempDirEnv} {
		if value, ok := os.LookupEnv(key); ok {
			env[key] = value
		}
	}
	home, _ := os.UserHomeDir()
	return Environment{
		Platform: runtime.GOOS,
		Env:      env,
		HomeDir:  home,
	}
}

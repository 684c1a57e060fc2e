package chain

import (
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// SysPrefix marks names computed at resolution time instead of bound.
const SysPrefix = "sys."

// SystemVars computes sys.* values on demand. The zero value uses the
// wall clock.
type SystemVars struct {
	// Now overrides the clock.
	Now func() time.Time
}

// IsSystemName reports whether name belongs to the sys.* namespace.
func IsSystemName(name string) bool {
	return strings.HasPrefix(name, SysPrefix)
}

// SystemNames lists every supported sys.* variable.
func SystemNames() []string {
	return []string{
		"sys.date", "sys.time", "sys.datetime", "sys.timestamp",
		"sys.os", "sys.arch", "sys.user", "sys.hostname",
	}
}

// Lookup returns the value of a sys.* variable.
func (s SystemVars) Lookup(name string) (string, bool) {
	switch name {
	case "sys.date":
		return s.now().Format("2006-01-02"), true
	case "sys.time":
		return s.now().Format("15:04:05"), true
	case "sys.datetime":
		return s.now().Format("2006-01-02 15:04:05"), true
	case "sys.timestamp":
		return strconv.FormatInt(s.now().Unix(), 10), true
	case "sys.os":
		return runtime.GOOS, true
	case "sys.arch":
		return runtime.GOARCH, true
	case "sys.user":
		return currentUser(), true
	case "sys.hostname":
		h, err := os.Hostname()
		if err != nil {
			return "unknown", true
		}
		return h, true
	default:
		return "", false
	}
}

func (s SystemVars) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}

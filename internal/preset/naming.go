package preset

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultName is the preset every other preset falls back to.
	DefaultName = "DEFAULT"
	// DefaultPrefix namespaces DEFAULT's keys.
	DefaultPrefix = "_DF$P_"

	presetsKey = "_DPRSCFG_"
	activeKey  = "_CURRPRESET_"
)

var reservedKeys = []string{presetsKey, activeKey}

// PrefixFor derives the storage prefix of a preset.
func PrefixFor(name string) string {
	if name == DefaultName {
		return DefaultPrefix
	}
	// A Caser is stateful; build one per call.
	return "_" + cases.Upper(language.Und).String(name) + "_"
}

// IsReservedKey reports whether key holds registry bookkeeping rather than a
// setting.
func IsReservedKey(key string) bool {
	for _, r := range reservedKeys {
		if key == r {
			return true
		}
	}
	return false
}

func foldName(name string) string {
	return cases.Fold().String(name)
}

// validateName checks a name about to be registered.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.IndexFunc(name, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidName, name)
	}
	if name == DefaultName {
		return nil
	}
	prefix := PrefixFor(name)
	if prefix == DefaultPrefix {
		return fmt.Errorf("%w: %q maps onto the %s prefix", ErrReservedName, name, DefaultName)
	}
	for _, key := range reservedKeys {
		if strings.HasPrefix(key, prefix) {
			return fmt.Errorf("%w: %q would shadow registry key %s", ErrReservedName, name, key)
		}
	}
	return nil
}

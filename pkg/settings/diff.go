package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// Fingerprint returns a hex SHA-256 digest of the settings. The digest does
// not depend on the order of the list.
func Fingerprint(list []engine.ConfigurationSetting) string {
	sorted := append([]engine.ConfigurationSetting(nil), list...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key() < sorted[j].Key()
	})

	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte(s.Namespace))
		h.Write([]byte{0})
		h.Write([]byte(s.OptionName))
		h.Write([]byte{0})
		h.Write([]byte(s.Value))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Find returns the setting with the given namespace and option.
func Find(list []engine.ConfigurationSetting, namespace, option string) (engine.ConfigurationSetting, bool) {
	for _, s := range list {
		if s.Namespace == namespace && s.OptionName == option {
			return s, true
		}
	}
	return engine.ConfigurationSetting{}, false
}

// Mismatch is an expected setting that a live environment does not carry.
type Mismatch struct {
	Expected engine.ConfigurationSetting `json:"expected"`

	// Actual is the live value. Missing is true if the option is not set at all.
	Actual  string `json:"actual,omitempty"`
	Missing bool   `json:"missing"`
}

// Mismatches compares expected settings against the live list of an
// environment. Options present only in the live list are ignored; the
// control plane reports many defaults that were never set explicitly.
func Mismatches(expected, current []engine.ConfigurationSetting) []Mismatch {
	var out []Mismatch
	for _, want := range expected {
		got, ok := Find(current, want.Namespace, want.OptionName)
		if !ok {
			out = append(out, Mismatch{Expected: want, Missing: true})
			continue
		}
		if got.Value != want.Value {
			out = append(out, Mismatch{Expected: want, Actual: got.Value})
		}
	}
	return out
}

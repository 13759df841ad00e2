package config

import (
	"fmt"
	"regexp"

	"github.com/go-ini/ini"
)

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadProperties reads a property file of raw desired-configuration settings.
//
// Keys in the default section are used as written. Keys in a named section
// are prefixed with the section name and a dot, so a section
// [aws.autoscaling.asg] holding MinSize yields "aws.autoscaling.asg.MinSize".
// ${name} placeholders in values are replaced from vars; unknown placeholders
// are an error.
func LoadProperties(source interface{}, vars map[string]string) (map[string]string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		// ':' is part of namespace keys, so '=' is the only delimiter.
		KeyValueDelimiters:  "=",
		IgnoreInlineComment: true,
	}, source)
	if err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}

	out := make(map[string]string)
	for _, section := range f.Sections() {
		prefix := ""
		if section.Name() != ini.DefaultSection {
			prefix = section.Name() + "."
		}
		for _, key := range section.Keys() {
			value, err := Filter(key.String(), vars)
			if err != nil {
				return nil, fmt.Errorf("property %s%s: %w", prefix, key.Name(), err)
			}
			out[prefix+key.Name()] = value
		}
	}
	return out, nil
}

// Filter replaces ${name} placeholders in value from vars.
func Filter(value string, vars map[string]string) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(value, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("undefined placeholder ${%s}", missing)
	}
	return out, nil
}

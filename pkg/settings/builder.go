// Package settings turns flat property sets into control-plane configuration
// settings.
package settings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// Well-known namespaces and options.
const (
	NamespaceAutoScaling  = "aws:autoscaling:asg"
	NamespaceLoadBalancer = "aws:elb:loadbalancer"

	OptionMinSize                 = "MinSize"
	OptionAvailabilityZones       = "Availability Zones"
	OptionCustomAvailabilityZones = "Custom Availability Zones"
	OptionSSLCertificateID        = "SSLCertificateId"

	ProductionMinSize     = 2
	ProductionZones       = "Any 2"
	ProductionCustomZones = "us-east-1d, us-east-1e"
)

// ConfigParseError reports a raw property key or value the builder cannot use.
type ConfigParseError struct {
	Key    string
	Reason string
}

// Error implements the error interface.
func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("invalid configuration key %q: %s", e.Key, e.Reason)
}

// BuildOptions carries the per-family inputs of Build.
type BuildOptions struct {
	// TemplateSuffix is the template family the settings are built for.
	TemplateSuffix string

	// Production enables the production scaling overrides.
	Production bool

	// CertificateARN is bound to the load balancer's SSL listener.
	CertificateARN string
}

// Build decodes raw properties into settings. A key has the form
// "namespace.segments.Option"; every segment but the last joins with ':' into
// the namespace. In the option name '-' stands for a space and '?' for ':'.
//
// The result is sorted by raw key, followed by the synthetic settings, and is
// unique by (namespace, option).
func Build(raw map[string]string, opts BuildOptions) ([]engine.ConfigurationSetting, error) {
	if opts.CertificateARN == "" {
		return nil, fmt.Errorf("no certificate ARN for template family %q", opts.TemplateSuffix)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]engine.ConfigurationSetting, 0, len(raw)+2)
	for _, key := range keys {
		namespace, option, err := DecodeKey(key)
		if err != nil {
			return nil, err
		}
		value := raw[key]

		if opts.Production && namespace == NamespaceAutoScaling {
			value, err = productionOverride(key, option, value)
			if err != nil {
				return nil, err
			}
		}

		out = upsert(out, engine.ConfigurationSetting{Namespace: namespace, OptionName: option, Value: value})
	}

	if opts.Production {
		out = appendMissing(out, engine.ConfigurationSetting{
			Namespace:  NamespaceAutoScaling,
			OptionName: OptionMinSize,
			Value:      strconv.Itoa(ProductionMinSize),
		})
		out = appendMissing(out, engine.ConfigurationSetting{
			Namespace:  NamespaceAutoScaling,
			OptionName: OptionAvailabilityZones,
			Value:      ProductionZones,
		})
		out = upsert(out, engine.ConfigurationSetting{
			Namespace:  NamespaceAutoScaling,
			OptionName: OptionCustomAvailabilityZones,
			Value:      ProductionCustomZones,
		})
	}
	out = upsert(out, engine.ConfigurationSetting{
		Namespace:  NamespaceLoadBalancer,
		OptionName: OptionSSLCertificateID,
		Value:      opts.CertificateARN,
	})

	return out, nil
}

// DecodeKey splits a raw property key into namespace and option name.
func DecodeKey(key string) (namespace, option string, err error) {
	segments := strings.Split(key, ".")
	if len(segments) < 2 {
		return "", "", &ConfigParseError{Key: key, Reason: "missing namespace segment"}
	}
	for _, s := range segments {
		if s == "" {
			return "", "", &ConfigParseError{Key: key, Reason: "empty segment"}
		}
	}

	namespace = strings.Join(segments[:len(segments)-1], ":")
	option = segments[len(segments)-1]
	option = strings.ReplaceAll(option, "-", " ")
	option = strings.ReplaceAll(option, "?", ":")
	return namespace, option, nil
}

// EncodeKey is the inverse of DecodeKey for namespaces written with ':'.
func EncodeKey(namespace, option string) string {
	option = strings.ReplaceAll(option, ":", "?")
	option = strings.ReplaceAll(option, " ", "-")
	return strings.ReplaceAll(namespace, ":", ".") + "." + option
}

func productionOverride(key, option, value string) (string, error) {
	switch option {
	case OptionMinSize:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return "", &ConfigParseError{Key: key, Reason: fmt.Sprintf("MinSize %q is not a number", value)}
		}
		if n < ProductionMinSize {
			return strconv.Itoa(ProductionMinSize), nil
		}
	case OptionAvailabilityZones:
		if value != ProductionZones {
			return ProductionZones, nil
		}
	}
	return value, nil
}

// appendMissing appends s unless a setting with the same key is present.
func appendMissing(list []engine.ConfigurationSetting, s engine.ConfigurationSetting) []engine.ConfigurationSetting {
	if _, ok := Find(list, s.Namespace, s.OptionName); ok {
		return list
	}
	return append(list, s)
}

// upsert replaces a same-keyed setting in place or appends s.
func upsert(list []engine.ConfigurationSetting, s engine.ConfigurationSetting) []engine.ConfigurationSetting {
	for i := range list {
		if list[i].Namespace == s.Namespace && list[i].OptionName == s.OptionName {
			list[i].Value = s.Value
			return list
		}
	}
	return append(list, s)
}

// Package config loads the declared desired state of a stack.
//
// # Overview
//
// A stack file (YAML) names the stack and instance, the Elastic Beanstalk
// application, the services to run and the certificate of each template
// family. Environment variables prefixed with BEANSTACK_ override scalar
// fields. The loaded configuration is checked with struct validation and a
// CUE naming schema.
//
// Environment names are never chosen directly. They are derived from the
// service prefix and the stack identity:
//
//	<prefix>-<stack>-<instance>           environment name
//	<prefix>-<stack>-<instance>-<suffix>  CNAME prefix
//	<stack>-<instance>-<family>           configuration template
//
// # Property Files
//
// Raw desired-configuration settings are read from an INI-style property file
// with LoadProperties. Values may reference stack fields as ${stack},
// ${instance}, ${region} and so on.
//
// # Usage Example
//
//	cfg, err := config.Load("stack.yaml", config.LoadOptions{})
//	if err != nil {
//	    return err
//	}
//	raw, err := config.LoadProperties(cfg.PropertiesFile, cfg.Variables())
//	if err != nil {
//	    return err
//	}
//	for _, spec := range cfg.EnvironmentSpecs() {
//	    fmt.Println(spec.EnvironmentName, spec.TemplateFamily)
//	}
//
// Watcher reloads the stack when the stack or property file changes.
package config

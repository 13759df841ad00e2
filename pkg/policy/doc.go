// Package policy vets built configuration templates with Open Policy Agent
// before any environment is touched.
//
// Each policy is a Rego module that defines a "deny" set. The input
// document is one template family's settings:
//
//	{
//	  "family": "portal",
//	  "stack": "acme",
//	  "production": true,
//	  "settings": {"aws:autoscaling:asg/MinSize": "2", ...},
//	  "options": [{"namespace": "aws:autoscaling:asg", "option": "MinSize", "value": "2"}, ...]
//	}
//
// A deny member is either a message string or an object:
//
//	deny contains violation if {
//		input.settings["aws:autoscaling:asg/MaxSize"] == "1"
//		violation := {
//			"message": "MaxSize of 1 leaves no room to scale",
//			"severity": "warning",
//			"setting": "aws:autoscaling:asg/MaxSize",
//		}
//	}
//
// Violations with severity "error" or "critical" deny the settings and abort
// the setup run. Anything else is logged as a warning.
//
// Built-in policies:
//   - production-capacity: production MinSize of at least 2 over "Any 2" zones
//   - certificate-binding: a non-empty SSLCertificateId on every template
//   - scaling-bounds: MinSize not above MaxSize
//
// Additional policies are loaded from .rego or .json files and can be
// hot-reloaded with Loader.Watch.
package policy

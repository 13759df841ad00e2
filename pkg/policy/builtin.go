package policy

import (
	"time"
)

// Names of the built-in policies.
const (
	PolicyProductionCapacity = "production-capacity"
	PolicyCertificateBinding = "certificate-binding"
	PolicyScalingBounds      = "scaling-bounds"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		productionCapacityPolicy(),
		certificateBindingPolicy(),
		scalingBoundsPolicy(),
	}
}

// productionCapacityPolicy keeps production templates on at least two
// instances spread over two zones.
func productionCapacityPolicy() Policy {
	return Policy{
		Name:        PolicyProductionCapacity,
		Description: "Production templates run at least two instances across two availability zones",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"production", "capacity"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package beanstack.policies.capacity

import rego.v1

min_size := "aws:autoscaling:asg/MinSize"

zones := "aws:autoscaling:asg/Availability Zones"

deny contains violation if {
	input.production
	not input.settings[min_size]
	violation := {
		"message": "production template does not set MinSize",
		"severity": "warning",
		"setting": min_size,
	}
}

deny contains violation if {
	input.production
	value := input.settings[min_size]
	not regex.match(` + "`^[0-9]+$`" + `, value)
	violation := {
		"message": sprintf("MinSize %q is not a number", [value]),
		"setting": min_size,
	}
}

deny contains violation if {
	input.production
	value := input.settings[min_size]
	regex.match(` + "`^[0-9]+$`" + `, value)
	to_number(value) < 2
	violation := {
		"message": sprintf("production MinSize is %s, must be at least 2", [value]),
		"setting": min_size,
	}
}

deny contains violation if {
	input.production
	value := object.get(input.settings, zones, "")
	value != "Any 2"
	violation := {
		"message": sprintf("production Availability Zones is %q, must be \"Any 2\"", [value]),
		"setting": zones,
	}
}`,
	}
}

// certificateBindingPolicy requires every template to bind a certificate.
func certificateBindingPolicy() Policy {
	return Policy{
		Name:        PolicyCertificateBinding,
		Description: "Every template binds an SSL certificate to its load balancer",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"security", "tls"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package beanstack.policies.certificate

import rego.v1

certificate := "aws:elb:loadbalancer/SSLCertificateId"

deny contains violation if {
	object.get(input.settings, certificate, "") == ""
	violation := {
		"message": sprintf("template family %s has no SSL certificate", [input.family]),
		"setting": certificate,
	}
}

deny contains violation if {
	value := input.settings[certificate]
	value != ""
	not startswith(value, "arn:")
	violation := {
		"message": sprintf("certificate %q is not an ARN", [value]),
		"severity": "warning",
		"setting": certificate,
	}
}`,
	}
}

// scalingBoundsPolicy rejects a MinSize above MaxSize.
func scalingBoundsPolicy() Policy {
	return Policy{
		Name:        PolicyScalingBounds,
		Description: "Auto-scaling MinSize does not exceed MaxSize",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"capacity"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package beanstack.policies.bounds

import rego.v1

deny contains violation if {
	lo := input.settings["aws:autoscaling:asg/MinSize"]
	hi := input.settings["aws:autoscaling:asg/MaxSize"]
	regex.match(` + "`^[0-9]+$`" + `, lo)
	regex.match(` + "`^[0-9]+$`" + `, hi)
	to_number(lo) > to_number(hi)
	violation := {
		"message": sprintf("MinSize %s exceeds MaxSize %s", [lo, hi]),
		"setting": "aws:autoscaling:asg/MinSize",
	}
}`,
	}
}

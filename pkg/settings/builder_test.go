package settings

import (
	"errors"
	"reflect"
	"testing"

	"github.com/openfroyo/beanstack/pkg/engine"
)

const testARN = "arn:aws:iam::325565585839:server-certificate/generic"

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		key       string
		namespace string
		option    string
	}{
		{"aws.autoscaling.asg.MinSize", "aws:autoscaling:asg", "MinSize"},
		{"aws:autoscaling:asg.MinSize", "aws:autoscaling:asg", "MinSize"},
		{"aws.autoscaling.asg.Availability-Zones", "aws:autoscaling:asg", "Availability Zones"},
		{"aws.elasticbeanstalk.application.environment.PARAM1", "aws:elasticbeanstalk:application:environment", "PARAM1"},
		{"aws.elasticbeanstalk.container.tomcat.jvmoptions.Xmx", "aws:elasticbeanstalk:container:tomcat:jvmoptions", "Xmx"},
		{"aws.elb.healthcheck.Target?Path", "aws:elb:healthcheck", "Target:Path"},
		{"aws.elb.policies.Stickiness-Policy?Enabled", "aws:elb:policies", "Stickiness Policy:Enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			ns, opt, err := DecodeKey(tt.key)
			if err != nil {
				t.Fatalf("DecodeKey failed: %v", err)
			}
			if ns != tt.namespace {
				t.Errorf("Expected namespace %q, got %q", tt.namespace, ns)
			}
			if opt != tt.option {
				t.Errorf("Expected option %q, got %q", tt.option, opt)
			}
		})
	}
}

func TestDecodeKeyRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"aws:autoscaling:asg", "Availability Zones"},
		{"aws:elb:policies", "Stickiness Policy:Enabled"},
		{"aws:elasticbeanstalk:hostmanager", "LogPublicationControl"},
	}
	for _, p := range pairs {
		ns, opt, err := DecodeKey(EncodeKey(p[0], p[1]))
		if err != nil {
			t.Fatalf("DecodeKey(EncodeKey(%v)) failed: %v", p, err)
		}
		if ns != p[0] || opt != p[1] {
			t.Errorf("Round trip of %v gave (%q, %q)", p, ns, opt)
		}
	}
}

func TestDecodeKeyRejectsMalformed(t *testing.T) {
	for _, key := range []string{"MinSize", "", "aws..MinSize", "aws.autoscaling."} {
		_, _, err := DecodeKey(key)
		var pe *ConfigParseError
		if !errors.As(err, &pe) {
			t.Errorf("Expected ConfigParseError for %q, got %v", key, err)
		}
	}
}

func TestBuildProductionRaisesMinSize(t *testing.T) {
	out, err := Build(map[string]string{"aws:autoscaling:asg.MinSize": "1"}, BuildOptions{
		TemplateSuffix: "generic",
		Production:     true,
		CertificateARN: testARN,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	s, ok := Find(out, NamespaceAutoScaling, OptionMinSize)
	if !ok || s.Value != "2" {
		t.Errorf("Expected MinSize 2, got %+v", s)
	}
}

func TestBuildProductionOverrides(t *testing.T) {
	raw := map[string]string{
		"aws.autoscaling.asg.MinSize":            "3",
		"aws.autoscaling.asg.MaxSize":            "4",
		"aws.autoscaling.asg.Availability-Zones": "Any 1",
	}
	out, err := Build(raw, BuildOptions{TemplateSuffix: "generic", Production: true, CertificateARN: testARN})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []engine.ConfigurationSetting{
		{Namespace: NamespaceAutoScaling, OptionName: OptionAvailabilityZones, Value: ProductionZones},
		{Namespace: NamespaceAutoScaling, OptionName: "MaxSize", Value: "4"},
		{Namespace: NamespaceAutoScaling, OptionName: OptionMinSize, Value: "3"},
		{Namespace: NamespaceAutoScaling, OptionName: OptionCustomAvailabilityZones, Value: ProductionCustomZones},
		{Namespace: NamespaceLoadBalancer, OptionName: OptionSSLCertificateID, Value: testARN},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Unexpected settings:\n got %v\nwant %v", out, want)
	}
}

func TestBuildProductionAddsMissingCapacity(t *testing.T) {
	out, err := Build(map[string]string{}, BuildOptions{TemplateSuffix: "generic", Production: true, CertificateARN: testARN})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []engine.ConfigurationSetting{
		{Namespace: NamespaceAutoScaling, OptionName: OptionMinSize, Value: "2"},
		{Namespace: NamespaceAutoScaling, OptionName: OptionAvailabilityZones, Value: ProductionZones},
		{Namespace: NamespaceAutoScaling, OptionName: OptionCustomAvailabilityZones, Value: ProductionCustomZones},
		{Namespace: NamespaceLoadBalancer, OptionName: OptionSSLCertificateID, Value: testARN},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Unexpected settings:\n got %v\nwant %v", out, want)
	}
}

func TestBuildProductionKeepsLargerMinSize(t *testing.T) {
	out, err := Build(map[string]string{"aws.autoscaling.asg.MinSize": "5"}, BuildOptions{Production: true, CertificateARN: testARN})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s, _ := Find(out, NamespaceAutoScaling, OptionMinSize); s.Value != "5" {
		t.Errorf("Expected MinSize 5, got %q", s.Value)
	}
	if s, _ := Find(out, NamespaceAutoScaling, OptionAvailabilityZones); s.Value != ProductionZones {
		t.Errorf("Expected zones %q, got %q", ProductionZones, s.Value)
	}
}

func TestBuildNonProductionLeavesValues(t *testing.T) {
	raw := map[string]string{
		"aws.autoscaling.asg.MinSize":            "1",
		"aws.autoscaling.asg.Availability-Zones": "Any 1",
	}
	out, err := Build(raw, BuildOptions{TemplateSuffix: "portal", CertificateARN: testARN})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if s, _ := Find(out, NamespaceAutoScaling, OptionMinSize); s.Value != "1" {
		t.Errorf("Expected MinSize untouched, got %q", s.Value)
	}
	if s, _ := Find(out, NamespaceAutoScaling, OptionAvailabilityZones); s.Value != "Any 1" {
		t.Errorf("Expected zones untouched, got %q", s.Value)
	}
	if _, ok := Find(out, NamespaceAutoScaling, OptionCustomAvailabilityZones); ok {
		t.Error("Expected no custom zones outside production")
	}
}

func TestBuildAlwaysBindsCertificate(t *testing.T) {
	for _, production := range []bool{false, true} {
		out, err := Build(map[string]string{}, BuildOptions{TemplateSuffix: "generic", Production: production, CertificateARN: testARN})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if len(out) == 0 {
			t.Fatal("Expected a non-empty settings list")
		}
		if s, ok := Find(out, NamespaceLoadBalancer, OptionSSLCertificateID); !ok || s.Value != testARN {
			t.Errorf("Expected certificate binding, got %+v", s)
		}
	}
}

func TestBuildCertificateReplacesRawValue(t *testing.T) {
	raw := map[string]string{"aws.elb.loadbalancer.SSLCertificateId": "arn:stale"}
	out, err := Build(raw, BuildOptions{CertificateARN: testARN})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(out) != 1 || out[0].Value != testARN {
		t.Errorf("Expected a single certificate setting with the given ARN, got %v", out)
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := Build(map[string]string{"MinSize": "2"}, BuildOptions{CertificateARN: testARN}); err == nil {
		t.Error("Expected error for single-segment key")
	}
	if _, err := Build(map[string]string{"aws.autoscaling.asg.MinSize": "two"}, BuildOptions{Production: true, CertificateARN: testARN}); err == nil {
		t.Error("Expected error for non-numeric MinSize in production")
	}
	if _, err := Build(map[string]string{}, BuildOptions{TemplateSuffix: "generic"}); err == nil {
		t.Error("Expected error for missing certificate")
	}
}

func TestBuildDeterministic(t *testing.T) {
	raw := map[string]string{
		"aws.autoscaling.asg.MinSize":                    "2",
		"aws.elasticbeanstalk.application.environment.A": "1",
		"aws.elasticbeanstalk.application.environment.B": "2",
		"aws.autoscaling.launchconfiguration.EC2KeyName": "prod-key",
	}
	opts := BuildOptions{Production: true, CertificateARN: testARN}
	first, _ := Build(raw, opts)
	for i := 0; i < 20; i++ {
		again, _ := Build(raw, opts)
		if !reflect.DeepEqual(first, again) {
			t.Fatal("Expected identical output across builds")
		}
	}
}

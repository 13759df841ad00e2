package settings

import (
	"testing"

	"github.com/openfroyo/beanstack/pkg/engine"
)

func TestFingerprintIgnoresOrder(t *testing.T) {
	a := []engine.ConfigurationSetting{
		{Namespace: "aws:autoscaling:asg", OptionName: "MinSize", Value: "2"},
		{Namespace: "aws:elb:loadbalancer", OptionName: "SSLCertificateId", Value: "arn"},
	}
	b := []engine.ConfigurationSetting{a[1], a[0]}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("Expected order-independent fingerprint")
	}

	c := []engine.ConfigurationSetting{a[0], {Namespace: "aws:elb:loadbalancer", OptionName: "SSLCertificateId", Value: "other"}}
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("Expected different values to change the fingerprint")
	}
	if len(Fingerprint(a)) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(Fingerprint(a)))
	}
}

func TestMismatches(t *testing.T) {
	expected := []engine.ConfigurationSetting{
		{Namespace: "aws:autoscaling:asg", OptionName: "MinSize", Value: "2"},
		{Namespace: "aws:autoscaling:asg", OptionName: "MaxSize", Value: "4"},
		{Namespace: "aws:elb:loadbalancer", OptionName: "SSLCertificateId", Value: "arn"},
	}
	current := []engine.ConfigurationSetting{
		{Namespace: "aws:autoscaling:asg", OptionName: "MinSize", Value: "1"},
		{Namespace: "aws:elb:loadbalancer", OptionName: "SSLCertificateId", Value: "arn"},
		{Namespace: "aws:ec2:vpc", OptionName: "VPCId", Value: "vpc-1"},
	}

	got := Mismatches(expected, current)
	if len(got) != 2 {
		t.Fatalf("Expected 2 mismatches, got %d: %v", len(got), got)
	}
	if got[0].Expected.OptionName != "MinSize" || got[0].Actual != "1" || got[0].Missing {
		t.Errorf("Unexpected MinSize mismatch: %+v", got[0])
	}
	if got[1].Expected.OptionName != "MaxSize" || !got[1].Missing {
		t.Errorf("Expected MaxSize to be missing: %+v", got[1])
	}

	if len(Mismatches(expected, expected)) != 0 {
		t.Error("Expected no mismatches against itself")
	}
}

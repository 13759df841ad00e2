package beanstalk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// fakeAPI records inputs and returns canned outputs.
type fakeAPI struct {
	mu sync.Mutex

	environments []types.EnvironmentDescription
	options      *elasticbeanstalk.DescribeConfigurationOptionsOutput
	settings     []types.ConfigurationSettingsDescription
	err          error

	createEnv   *elasticbeanstalk.CreateEnvironmentInput
	updateEnv   *elasticbeanstalk.UpdateEnvironmentInput
	terminate   *elasticbeanstalk.TerminateEnvironmentInput
	createTmpl  *elasticbeanstalk.CreateConfigurationTemplateInput
	updateTmpl  *elasticbeanstalk.UpdateConfigurationTemplateInput
	describeEnv *elasticbeanstalk.DescribeEnvironmentsInput
	calls       []string
}

func (f *fakeAPI) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.err
}

func (f *fakeAPI) DescribeEnvironments(ctx context.Context, in *elasticbeanstalk.DescribeEnvironmentsInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeEnvironmentsOutput, error) {
	if err := f.record("DescribeEnvironments"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeEnv = in
	return &elasticbeanstalk.DescribeEnvironmentsOutput{Environments: f.environments}, nil
}

func (f *fakeAPI) CreateEnvironment(ctx context.Context, in *elasticbeanstalk.CreateEnvironmentInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.CreateEnvironmentOutput, error) {
	if err := f.record("CreateEnvironment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createEnv = in
	return &elasticbeanstalk.CreateEnvironmentOutput{}, nil
}

func (f *fakeAPI) UpdateEnvironment(ctx context.Context, in *elasticbeanstalk.UpdateEnvironmentInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.UpdateEnvironmentOutput, error) {
	if err := f.record("UpdateEnvironment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateEnv = in
	return &elasticbeanstalk.UpdateEnvironmentOutput{}, nil
}

func (f *fakeAPI) RestartAppServer(ctx context.Context, in *elasticbeanstalk.RestartAppServerInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.RestartAppServerOutput, error) {
	if err := f.record("RestartAppServer"); err != nil {
		return nil, err
	}
	return &elasticbeanstalk.RestartAppServerOutput{}, nil
}

func (f *fakeAPI) TerminateEnvironment(ctx context.Context, in *elasticbeanstalk.TerminateEnvironmentInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.TerminateEnvironmentOutput, error) {
	if err := f.record("TerminateEnvironment"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminate = in
	return &elasticbeanstalk.TerminateEnvironmentOutput{}, nil
}

func (f *fakeAPI) DescribeConfigurationOptions(ctx context.Context, in *elasticbeanstalk.DescribeConfigurationOptionsInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeConfigurationOptionsOutput, error) {
	if err := f.record("DescribeConfigurationOptions"); err != nil {
		return nil, err
	}
	return f.options, nil
}

func (f *fakeAPI) CreateConfigurationTemplate(ctx context.Context, in *elasticbeanstalk.CreateConfigurationTemplateInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.CreateConfigurationTemplateOutput, error) {
	if err := f.record("CreateConfigurationTemplate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createTmpl = in
	return &elasticbeanstalk.CreateConfigurationTemplateOutput{}, nil
}

func (f *fakeAPI) UpdateConfigurationTemplate(ctx context.Context, in *elasticbeanstalk.UpdateConfigurationTemplateInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.UpdateConfigurationTemplateOutput, error) {
	if err := f.record("UpdateConfigurationTemplate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateTmpl = in
	return &elasticbeanstalk.UpdateConfigurationTemplateOutput{}, nil
}

func (f *fakeAPI) DeleteConfigurationTemplate(ctx context.Context, in *elasticbeanstalk.DeleteConfigurationTemplateInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DeleteConfigurationTemplateOutput, error) {
	if err := f.record("DeleteConfigurationTemplate"); err != nil {
		return nil, err
	}
	return &elasticbeanstalk.DeleteConfigurationTemplateOutput{}, nil
}

func (f *fakeAPI) DescribeConfigurationSettings(ctx context.Context, in *elasticbeanstalk.DescribeConfigurationSettingsInput, _ ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeConfigurationSettingsOutput, error) {
	if err := f.record("DescribeConfigurationSettings"); err != nil {
		return nil, err
	}
	return &elasticbeanstalk.DescribeConfigurationSettingsOutput{ConfigurationSettings: f.settings}, nil
}

func newTestClient(f *fakeAPI) *Client {
	return newClient(f, zerolog.Nop())
}

func TestDescribeEnvironments(t *testing.T) {
	f := &fakeAPI{
		environments: []types.EnvironmentDescription{
			{
				EnvironmentId:   aws.String("e-old"),
				EnvironmentName: aws.String("auth-acme-dev"),
				Status:          types.EnvironmentStatusTerminated,
			},
			{
				EnvironmentId:   aws.String("e-123"),
				EnvironmentName: aws.String("auth-acme-dev"),
				Status:          types.EnvironmentStatusReady,
				VersionLabel:    aws.String("1.2.0"),
				TemplateName:    aws.String("acme-dev-generic"),
				CNAME:           aws.String("auth-acme-dev-web.elasticbeanstalk.com"),
				Health:          types.EnvironmentHealthGreen,
			},
		},
	}
	c := newTestClient(f)

	states, err := c.DescribeEnvironments(context.Background(), "acme", "auth-acme-dev")
	if err != nil {
		t.Fatalf("DescribeEnvironments failed: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("Expected 2 states, got %d", len(states))
	}
	if states[0].Status != engine.StatusTerminated {
		t.Errorf("Expected first status Terminated, got %s", states[0].Status)
	}

	live := states[1]
	if live.EnvironmentID != "e-123" || live.Status != engine.StatusReady {
		t.Errorf("Unexpected live state: %+v", live)
	}
	if live.VersionLabel != "1.2.0" || live.TemplateName != "acme-dev-generic" || live.Health != "Green" {
		t.Errorf("Unexpected live state fields: %+v", live)
	}

	if aws.ToString(f.describeEnv.ApplicationName) != "acme" {
		t.Errorf("Expected application acme, got %q", aws.ToString(f.describeEnv.ApplicationName))
	}
	if len(f.describeEnv.EnvironmentNames) != 1 || f.describeEnv.EnvironmentNames[0] != "auth-acme-dev" {
		t.Errorf("Unexpected environment names: %v", f.describeEnv.EnvironmentNames)
	}
}

func TestCreateEnvironmentOmitsEmptyFields(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)

	err := c.CreateEnvironment(context.Background(), engine.CreateEnvironmentRequest{
		ApplicationName: "acme",
		EnvironmentName: "auth-acme-dev",
		TemplateName:    "acme-dev-generic",
		VersionLabel:    "1.0.0",
	})
	if err != nil {
		t.Fatalf("CreateEnvironment failed: %v", err)
	}
	if f.createEnv.CNAMEPrefix != nil {
		t.Errorf("Expected no CNAME prefix, got %q", aws.ToString(f.createEnv.CNAMEPrefix))
	}
	if aws.ToString(f.createEnv.TemplateName) != "acme-dev-generic" {
		t.Errorf("Unexpected template name %q", aws.ToString(f.createEnv.TemplateName))
	}
}

func TestUpdateEnvironmentLeavesEmptyFieldsUnset(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)

	err := c.UpdateEnvironment(context.Background(), engine.UpdateEnvironmentRequest{
		EnvironmentID: "e-123",
		VersionLabel:  "2.0.0",
	})
	if err != nil {
		t.Fatalf("UpdateEnvironment failed: %v", err)
	}
	if f.updateEnv.TemplateName != nil {
		t.Error("Expected template name to be unset")
	}
	if f.updateEnv.EnvironmentName != nil {
		t.Error("Expected environment name to be unset")
	}
	if aws.ToString(f.updateEnv.VersionLabel) != "2.0.0" {
		t.Errorf("Expected version 2.0.0, got %q", aws.ToString(f.updateEnv.VersionLabel))
	}
}

func TestTerminateEnvironment(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)

	if err := c.TerminateEnvironment(context.Background(), "e-123", true); err != nil {
		t.Fatalf("TerminateEnvironment failed: %v", err)
	}
	if !aws.ToBool(f.terminate.TerminateResources) {
		t.Error("Expected TerminateResources to be true")
	}
}

func TestTemplateSettingsConversion(t *testing.T) {
	f := &fakeAPI{}
	c := newTestClient(f)
	settings := []engine.ConfigurationSetting{
		{Namespace: "aws:autoscaling:asg", OptionName: "MinSize", Value: "2"},
		{Namespace: "aws:elb:loadbalancer", OptionName: "SSLCertificateId", Value: "arn:cert"},
	}

	if err := c.CreateConfigurationTemplate(context.Background(), "acme", "acme-dev-generic", "64bit Amazon Linux", settings); err != nil {
		t.Fatalf("CreateConfigurationTemplate failed: %v", err)
	}
	if len(f.createTmpl.OptionSettings) != 2 {
		t.Fatalf("Expected 2 option settings, got %d", len(f.createTmpl.OptionSettings))
	}
	got := f.createTmpl.OptionSettings[1]
	if aws.ToString(got.Namespace) != "aws:elb:loadbalancer" || aws.ToString(got.Value) != "arn:cert" {
		t.Errorf("Unexpected option setting: %s/%s=%s",
			aws.ToString(got.Namespace), aws.ToString(got.OptionName), aws.ToString(got.Value))
	}
	if aws.ToString(f.createTmpl.SolutionStackName) != "64bit Amazon Linux" {
		t.Errorf("Unexpected solution stack %q", aws.ToString(f.createTmpl.SolutionStackName))
	}

	if err := c.UpdateConfigurationTemplate(context.Background(), "acme", "acme-dev-generic", settings[:1]); err != nil {
		t.Fatalf("UpdateConfigurationTemplate failed: %v", err)
	}
	if len(f.updateTmpl.OptionSettings) != 1 {
		t.Errorf("Expected 1 option setting, got %d", len(f.updateTmpl.OptionSettings))
	}
}

func TestDescribeConfigurationOptions(t *testing.T) {
	f := &fakeAPI{
		options: &elasticbeanstalk.DescribeConfigurationOptionsOutput{
			SolutionStackName: aws.String("64bit Amazon Linux"),
			Options:           make([]types.ConfigurationOptionDescription, 3),
		},
	}
	c := newTestClient(f)

	desc, err := c.DescribeConfigurationOptions(context.Background(), "acme", "acme-dev-generic")
	if err != nil {
		t.Fatalf("DescribeConfigurationOptions failed: %v", err)
	}
	if desc.SolutionStack != "64bit Amazon Linux" || desc.OptionCount != 3 {
		t.Errorf("Unexpected descriptor: %+v", desc)
	}
}

func TestDescribeConfigurationSettingsFlattens(t *testing.T) {
	f := &fakeAPI{
		settings: []types.ConfigurationSettingsDescription{
			{
				OptionSettings: []types.ConfigurationOptionSetting{
					{Namespace: aws.String("aws:autoscaling:asg"), OptionName: aws.String("MinSize"), Value: aws.String("1")},
					{Namespace: aws.String("aws:autoscaling:asg"), OptionName: aws.String("MaxSize"), Value: aws.String("4")},
				},
			},
		},
	}
	c := newTestClient(f)

	settings, err := c.DescribeConfigurationSettings(context.Background(), "acme", "auth-acme-dev")
	if err != nil {
		t.Fatalf("DescribeConfigurationSettings failed: %v", err)
	}
	if len(settings) != 2 {
		t.Fatalf("Expected 2 settings, got %d", len(settings))
	}
	if settings[0].Key() != "aws:autoscaling:asg/MinSize" || settings[0].Value != "1" {
		t.Errorf("Unexpected first setting: %+v", settings[0])
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass engine.ErrorClass
		wantCode  string
	}{
		{
			name:      "invalid parameter",
			err:       &smithy.GenericAPIError{Code: "InvalidParameterValue", Message: "No Configuration Template named 'x' found."},
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodeInvalidParameter,
		},
		{
			name:      "throttling",
			err:       &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"},
			wantClass: engine.ErrorClassThrottled,
			wantCode:  engine.ErrCodeRateLimited,
		},
		{
			name:      "operation in progress",
			err:       &smithy.GenericAPIError{Code: "OperationInProgress", Message: "busy"},
			wantClass: engine.ErrorClassConflict,
			wantCode:  engine.ErrCodeConflict,
		},
		{
			name:      "insufficient privileges",
			err:       &smithy.GenericAPIError{Code: "InsufficientPrivilegesException", Message: "denied"},
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodePermissionDenied,
		},
		{
			name:      "server fault",
			err:       &smithy.GenericAPIError{Code: "InternalFailure", Message: "oops", Fault: smithy.FaultServer},
			wantClass: engine.ErrorClassTransient,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "wrapped client fault",
			err:       fmt.Errorf("operation error: %w", &smithy.GenericAPIError{Code: "SomethingElse", Fault: smithy.FaultClient}),
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "plain error",
			err:       errors.New("connection reset"),
			wantClass: engine.ErrorClassPermanent,
			wantCode:  engine.ErrCodeProviderFailed,
		},
		{
			name:      "deadline",
			err:       context.DeadlineExceeded,
			wantClass: engine.ErrorClassTransient,
			wantCode:  engine.ErrCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(&fakeAPI{err: tt.err})
			err := c.RestartAppServer(context.Background(), "e-123")

			var cpe *engine.ControlPlaneError
			if !errors.As(err, &cpe) {
				t.Fatalf("Expected ControlPlaneError, got %T: %v", err, err)
			}
			if cpe.Class != tt.wantClass {
				t.Errorf("Expected class %s, got %s", tt.wantClass, cpe.Class)
			}
			if cpe.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, cpe.Code)
			}
			if cpe.Resource != "e-123" || cpe.Operation != "restart-app-server" {
				t.Errorf("Unexpected resource/operation: %s/%s", cpe.Resource, cpe.Operation)
			}
			if !errors.Is(err, tt.err) {
				t.Error("Expected the SDK error to remain in the chain")
			}
		})
	}
}

func TestInvalidParameterIsAbsent(t *testing.T) {
	c := newTestClient(&fakeAPI{err: &smithy.GenericAPIError{Code: "InvalidParameterValue", Message: "not found"}})

	_, err := c.DescribeConfigurationOptions(context.Background(), "acme", "missing")
	if !engine.IsAbsent(err) {
		t.Errorf("Expected IsAbsent for invalid parameter error, got %v", err)
	}
}

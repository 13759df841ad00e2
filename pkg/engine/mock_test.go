package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// mockEnv is one environment inside the mock control plane. While pending is
// positive the environment keeps its current status; each describe counts
// it down and it becomes Ready at zero.
type mockEnv struct {
	state   EnvironmentState
	pending int
}

// mockService is an in-memory control plane. Mutating calls against an
// environment that is not Ready are rejected, like the real one does.
type mockService struct {
	mu          sync.Mutex
	application string
	envs        map[string]*mockEnv
	terminated  map[string][]EnvironmentState
	templates   map[string][]ConfigurationSetting
	calls       []string
	failOps     map[string]error
	absentApp   bool
	settleAfter int
	nextID      int
}

func newMockService() *mockService {
	return &mockService{
		application: "stack",
		envs:        make(map[string]*mockEnv),
		terminated:  make(map[string][]EnvironmentState),
		templates:   make(map[string][]ConfigurationSetting),
		calls:       make([]string, 0),
		failOps:     make(map[string]error),
	}
}

func invalidParameter() error {
	return NewPermanentError("InvalidParameterValue: No Application named 'stack' found", nil).
		WithCode(ErrCodeInvalidParameter)
}

func (m *mockService) addEnv(name, version string, status EnvironmentStatus, pending int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.envs[name] = &mockEnv{
		state: EnvironmentState{
			EnvironmentID:   fmt.Sprintf("e-%d", m.nextID),
			EnvironmentName: name,
			Status:          status,
			VersionLabel:    version,
		},
		pending: pending,
	}
}

func (m *mockService) record(call string) error {
	m.calls = append(m.calls, call)
	if err, ok := m.failOps[call]; ok {
		return err
	}
	return nil
}

func (m *mockService) callsWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockService) mutations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if strings.HasPrefix(c, "describe") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (m *mockService) settle(env *mockEnv, status EnvironmentStatus) {
	if m.settleAfter == 0 {
		env.state.Status = StatusReady
		env.pending = 0
		return
	}
	env.state.Status = status
	env.pending = m.settleAfter
}

func (m *mockService) requireReady(name string) (*mockEnv, error) {
	env, ok := m.envs[name]
	if !ok {
		return nil, fmt.Errorf("no environment %s", name)
	}
	if env.state.Status != StatusReady {
		return nil, NewConflictError(fmt.Sprintf("environment %s is %s", name, env.state.Status), nil).
			WithCode(ErrCodeConflict)
	}
	return env, nil
}

func (m *mockService) findByID(id string) *mockEnv {
	for _, env := range m.envs {
		if env.state.EnvironmentID == id {
			return env
		}
	}
	return nil
}

func (m *mockService) DescribeEnvironments(ctx context.Context, applicationName, environmentName string) ([]EnvironmentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("describe:" + environmentName); err != nil {
		return nil, err
	}
	if m.absentApp {
		return nil, invalidParameter()
	}

	out := append([]EnvironmentState{}, m.terminated[environmentName]...)
	env, ok := m.envs[environmentName]
	if !ok {
		return out, nil
	}
	out = append(out, env.state)
	if env.pending > 0 {
		env.pending--
		if env.pending == 0 && env.state.Status.IsLive() {
			env.state.Status = StatusReady
		}
	}
	return out, nil
}

func (m *mockService) CreateEnvironment(ctx context.Context, req CreateEnvironmentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create:" + req.EnvironmentName); err != nil {
		return err
	}
	m.nextID++
	env := &mockEnv{state: EnvironmentState{
		EnvironmentID:   fmt.Sprintf("e-%d", m.nextID),
		EnvironmentName: req.EnvironmentName,
		VersionLabel:    req.VersionLabel,
		TemplateName:    req.TemplateName,
		CNAME:           req.CNAMEPrefix + ".elasticbeanstalk.com",
	}}
	m.settle(env, StatusLaunching)
	m.envs[req.EnvironmentName] = env
	return nil
}

func (m *mockService) UpdateEnvironment(ctx context.Context, req UpdateEnvironmentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op := "update-config:"
	if req.TemplateName == "" {
		op = "update-version:"
	}
	if err := m.record(op + req.EnvironmentName); err != nil {
		return err
	}
	env, err := m.requireReady(req.EnvironmentName)
	if err != nil {
		return err
	}
	if req.TemplateName != "" {
		env.state.TemplateName = req.TemplateName
	}
	if req.VersionLabel != "" {
		env.state.VersionLabel = req.VersionLabel
	}
	m.settle(env, StatusUpdating)
	return nil
}

func (m *mockService) RestartAppServer(ctx context.Context, environmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	env := m.findByID(environmentID)
	if env == nil {
		return fmt.Errorf("no environment with id %s", environmentID)
	}
	if err := m.record("restart:" + env.state.EnvironmentName); err != nil {
		return err
	}
	if _, err := m.requireReady(env.state.EnvironmentName); err != nil {
		return err
	}
	return nil
}

func (m *mockService) TerminateEnvironment(ctx context.Context, environmentID string, terminateResources bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	env := m.findByID(environmentID)
	if env == nil {
		return fmt.Errorf("no environment with id %s", environmentID)
	}
	if err := m.record(fmt.Sprintf("terminate:%s:%t", env.state.EnvironmentName, terminateResources)); err != nil {
		return err
	}
	env.state.Status = StatusTerminating
	return nil
}

func (m *mockService) DescribeConfigurationOptions(ctx context.Context, applicationName, templateName string) (*TemplateDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("describe-template:" + templateName); err != nil {
		return nil, err
	}
	settings, ok := m.templates[templateName]
	if !ok {
		return nil, invalidParameter()
	}
	return &TemplateDescriptor{SolutionStack: "64bit Amazon Linux running Tomcat 7", OptionCount: len(settings)}, nil
}

func (m *mockService) CreateConfigurationTemplate(ctx context.Context, applicationName, templateName, solutionStack string, settings []ConfigurationSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create-template:" + templateName); err != nil {
		return err
	}
	m.templates[templateName] = append([]ConfigurationSetting{}, settings...)
	return nil
}

func (m *mockService) UpdateConfigurationTemplate(ctx context.Context, applicationName, templateName string, settings []ConfigurationSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("update-template:" + templateName); err != nil {
		return err
	}
	m.templates[templateName] = append([]ConfigurationSetting{}, settings...)
	return nil
}

func (m *mockService) DeleteConfigurationTemplate(ctx context.Context, applicationName, templateName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete-template:" + templateName); err != nil {
		return err
	}
	delete(m.templates, templateName)
	return nil
}

func (m *mockService) DescribeConfigurationSettings(ctx context.Context, applicationName, environmentName string) ([]ConfigurationSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("describe-settings:" + environmentName); err != nil {
		return nil, err
	}
	env, ok := m.envs[environmentName]
	if !ok {
		return nil, invalidParameter()
	}
	return append([]ConfigurationSetting{}, m.templates[env.state.TemplateName]...), nil
}

// mockRecorder captures run history calls.
type mockRecorder struct {
	mu           sync.Mutex
	runs         map[string]RunKind
	reconciled   []ReconciliationResult
	terminations []TerminationResult
	ended        map[string]error
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		runs:  make(map[string]RunKind),
		ended: make(map[string]error),
	}
}

func (r *mockRecorder) BeginRun(ctx context.Context, kind RunKind, environments []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("run-%d", len(r.runs)+1)
	r.runs[id] = kind
	return id, nil
}

func (r *mockRecorder) RecordReconciliation(ctx context.Context, runID string, result ReconciliationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciled = append(r.reconciled, result)
	return nil
}

func (r *mockRecorder) RecordTermination(ctx context.Context, runID string, result TerminationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminations = append(r.terminations, result)
	return nil
}

func (r *mockRecorder) EndRun(ctx context.Context, runID string, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[runID] = runErr
	return nil
}

// mockMetrics counts engine measurements.
type mockMetrics struct {
	mu              sync.Mutex
	reconciliations map[string]int
	waits           int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{reconciliations: make(map[string]int)}
}

func (m *mockMetrics) RecordReconciliation(operation, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciliations[operation+"/"+status]++
}

func (m *mockMetrics) RecordReadyWait(environment string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits++
}

func (m *mockMetrics) SetEnvironmentReady(environment string, ready bool) {}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestObserver(svc CloudEnvironmentService) *Observer {
	return NewObserver(svc, "stack", ObserverOptions{
		PollInterval: time.Millisecond,
		Logger:       testLogger(),
	})
}

func testSpec(name, version, family string) EnvironmentSpec {
	return EnvironmentSpec{
		ServicePrefix:   strings.SplitN(name, "-", 2)[0],
		EnvironmentName: name,
		CNAMEPrefix:     name + "-sagebase",
		TemplateFamily:  family,
		Version:         ApplicationVersion{ApplicationName: "stack", VersionLabel: version},
	}
}

package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Fingerprinter computes a digest of a settings list for TemplateHandle.
type Fingerprinter func([]ConfigurationSetting) string

// TemplateManager ensures one configuration template per family exists and
// carries the desired settings.
type TemplateManager struct {
	service     CloudEnvironmentService
	prefix      string
	fingerprint Fingerprinter
	logger      zerolog.Logger
}

// NewTemplateManager creates a template manager. Template names are built as
// "<prefix>-<family>". fingerprint may be nil.
func NewTemplateManager(service CloudEnvironmentService, prefix string, fingerprint Fingerprinter, logger zerolog.Logger) *TemplateManager {
	return &TemplateManager{
		service:     service,
		prefix:      prefix,
		fingerprint: fingerprint,
		logger:      logger.With().Str("component", "template-manager").Logger(),
	}
}

// TemplateName returns the template name for a family.
func (m *TemplateManager) TemplateName(family string) string {
	if m.prefix == "" {
		return family
	}
	return m.prefix + "-" + family
}

// EnsureTemplate creates the family's template if absent, or replaces its
// settings if present. It does not wait for anything to settle.
func (m *TemplateManager) EnsureTemplate(ctx context.Context, family string, settings []ConfigurationSetting, applicationName, solutionStack string) (TemplateHandle, error) {
	name := m.TemplateName(family)
	if len(settings) == 0 {
		return TemplateHandle{}, NewPermanentError("refusing to write a template with no settings", nil).
			WithResource(name).
			WithCode(ErrCodeValidation)
	}

	handle := TemplateHandle{
		Family:          family,
		Name:            name,
		ApplicationName: applicationName,
		SolutionStack:   solutionStack,
	}
	if m.fingerprint != nil {
		handle.Fingerprint = m.fingerprint(settings)
	}

	exists, err := m.exists(ctx, applicationName, name)
	if err != nil {
		return TemplateHandle{}, err
	}

	if !exists {
		if err := m.service.CreateConfigurationTemplate(ctx, applicationName, name, solutionStack, settings); err != nil {
			return TemplateHandle{}, controlPlaneError(err, name, opCreateTemplate)
		}
		handle.Created = true
		m.logger.Info().
			Str("template", name).
			Int("settings", len(settings)).
			Str("fingerprint", handle.Fingerprint).
			Msg("Created configuration template")
		return handle, nil
	}

	if err := m.service.UpdateConfigurationTemplate(ctx, applicationName, name, settings); err != nil {
		return TemplateHandle{}, controlPlaneError(err, name, opUpdateTemplate)
	}
	m.logger.Info().
		Str("template", name).
		Int("settings", len(settings)).
		Str("fingerprint", handle.Fingerprint).
		Msg("Updated configuration template")
	return handle, nil
}

// DeleteTemplate deletes the family's template if it exists. It reports
// whether a delete call was issued.
func (m *TemplateManager) DeleteTemplate(ctx context.Context, family, applicationName string) (bool, error) {
	name := m.TemplateName(family)
	exists, err := m.exists(ctx, applicationName, name)
	if err != nil {
		return false, err
	}
	if !exists {
		m.logger.Debug().Str("template", name).Msg("Template absent, nothing to delete")
		return false, nil
	}
	if err := m.service.DeleteConfigurationTemplate(ctx, applicationName, name); err != nil {
		return false, controlPlaneError(err, name, opDeleteTemplate)
	}
	m.logger.Info().Str("template", name).Msg("Deleted configuration template")
	return true, nil
}

func (m *TemplateManager) exists(ctx context.Context, applicationName, name string) (bool, error) {
	_, err := m.service.DescribeConfigurationOptions(ctx, applicationName, name)
	if err == nil {
		return true, nil
	}
	if IsAbsent(err) {
		return false, nil
	}
	return false, controlPlaneError(err, name, opDescribeTemplate)
}

// String implements fmt.Stringer.
func (h TemplateHandle) String() string {
	return fmt.Sprintf("%s (family=%s)", h.Name, h.Family)
}

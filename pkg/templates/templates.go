package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Template names
const (
	EnvExample     = "env-example"
	ConfigYAML     = "config-yaml"
	SystemdService = "systemd-service"
)

//go:embed files/*.template
var builtin embed.FS

// TemplateData holds variables for template rendering.
type TemplateData map[string]string

// GetTemplatePaths returns the override search paths for a template.
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "deployhook", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name. A file in one of
// the override paths wins over the built-in copy.
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile("files/" + name + ".template")
	if err != nil {
		return "", fmt.Errorf("template file not found: %s: %w", name, err)
	}
	return string(content), nil
}

// Render renders a template with the given data.
// Uses {{PLACEHOLDER}} syntax for variable substitution.
func Render(templateName string, data TemplateData) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := tmplContent
	for key, value := range data {
		rendered = strings.ReplaceAll(rendered, fmt.Sprintf("{{%s}}", key), value)
	}

	return rendered, nil
}

// EnvExampleLines returns the KEY=value lines of the env example for the
// given route prefix.
func EnvExampleLines(prefix string) ([]string, error) {
	rendered, err := Render(EnvExample, TemplateData{"PREFIX": prefix})
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(rendered, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// RenderConfig renders a starter deployhook.yaml.
func RenderConfig(prefix, appRoot string) (string, error) {
	return Render(ConfigYAML, TemplateData{
		"PREFIX":   prefix,
		"APP_ROOT": appRoot,
	})
}

// RenderSystemdService renders the systemd service template.
func RenderSystemdService(user, group, workingDir, binary, logFile string) (string, error) {
	return Render(SystemdService, TemplateData{
		"USER":        user,
		"GROUP":       group,
		"WORKING_DIR": workingDir,
		"BINARY":      binary,
		"LOG_FILE":    logFile,
	})
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		EnvExample,
		ConfigYAML,
		SystemdService,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	validNames := map[string]bool{
		EnvExample:     true,
		ConfigYAML:     true,
		SystemdService: true,
	}
	return validNames[name]
}

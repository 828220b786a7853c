package boardlink

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// NewComponentGrid creates one component per combination of dimension
// values, for boards that expose the same reading on several channels.
//
// The command template uses Go's text/template syntax with dimension keys as
// variables. Missing template keys cause an error (fail-fast).
//
// Each component name has the form "Base Name (val1/val2)", with values
// ordered by sorted key. Dimension values are added as labels; static labels
// from [WithGridLabels] take precedence on collision.
//
// Example:
//
//	sonars, err := boardlink.NewComponentGrid("Sonar",
//	    boardlink.WithCommandTemplate("sonar {{.n}}"),
//	    boardlink.WithDimensions(map[string][]string{
//	        "n": {"1", "2", "3", "4"},
//	    }),
//	)
//	// 4 components, usable with WithComponents(sonars...)
func NewComponentGrid(baseName string, opts ...GridOption) ([]Component, error) {
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base name cannot be empty")
	}

	cfg := &gridConfig{
		staticLabels: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.commandTemplate == "" {
		return nil, errors.New("command template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	tmpl, err := template.New("command").Option("missingkey=error").Parse(cfg.commandTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid command template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	components := make([]Component, 0, len(combinations))
	for _, combo := range combinations {
		command, err := executeTemplate(tmpl, combo)
		if err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		name := formatComponentName(baseName, combo)

		// dimension labels first, static labels override
		labels := mergeMaps(combo, cfg.staticLabels)

		compOpts := []ComponentOption{
			WithLabels(flattenMap(labels)...),
			WithEnabled(!cfg.disabled),
		}
		if cfg.parser != nil {
			compOpts = append(compOpts, WithParser(cfg.parser))
		}
		if cfg.hasInterval {
			compOpts = append(compOpts, WithInterval(cfg.interval))
		}

		c, err := NewComponent(name, command, compOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create component '%s': %w", name, err)
		}
		components = append(components, c)
	}

	return components, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := sortedKeys(dims)
	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}
	result := make([]map[string]string, 0, total)

	// odometer over the sorted keys, rightmost fastest
	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatComponentName creates a name in the format "Base (v1/v2)".
func formatComponentName(baseName string, combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = combo[k]
	}
	return fmt.Sprintf("%s (%s)", baseName, strings.Join(parts, "/"))
}

// mergeMaps merges multiple maps, with later maps taking precedence.
func mergeMaps(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// flattenMap converts a map to sorted key-value pairs for variadic options.
func flattenMap(m map[string]string) []string {
	result := make([]string, 0, len(m)*2)
	for _, k := range sortedKeys(m) {
		result = append(result, k, m[k])
	}
	return result
}

// Package definition loads campaign catalogs from YAML and applies them to
// the core store.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edvin/outreach/internal/core"
	"github.com/edvin/outreach/internal/model"
)

var validate = validator.New()

func init() {
	validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return core.ValidateCron(fl.Field().String()) == nil
	})
}

// LoadFile reads and validates a definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a definition. Unknown keys are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if err := validate.Struct(&def); err != nil {
		return nil, fmt.Errorf("validate definition: %w", err)
	}
	if err := def.checkReferences(); err != nil {
		return nil, err
	}
	return &def, nil
}

// checkReferences verifies that every workflow only names templates and
// target groups declared in the same file, and that IDs are unique.
func (d *Definition) checkReferences() error {
	templates := map[string]bool{}
	for _, t := range d.Templates {
		if templates[t.ID] {
			return configError("template "+t.ID, "declared twice")
		}
		templates[t.ID] = true
	}
	groups := map[string]bool{}
	for _, tg := range d.TargetGroups {
		if groups[tg.ID] {
			return configError("target group "+tg.ID, "declared twice")
		}
		groups[tg.ID] = true
	}

	workflows := map[string]bool{}
	for _, w := range d.Workflows {
		subject := "workflow " + w.ID
		if workflows[w.ID] {
			return configError(subject, "declared twice")
		}
		workflows[w.ID] = true

		attached := map[string]bool{}
		for _, id := range w.TargetGroups {
			if !groups[id] {
				return configError(subject, fmt.Sprintf("unknown target group %q", id))
			}
			attached[id] = true
		}
		used := map[string]bool{}
		for _, t := range w.Templates {
			if !templates[t.Template] {
				return configError(subject, fmt.Sprintf("unknown template %q", t.Template))
			}
			used[t.Template] = true
		}
		for _, b := range w.Bindings {
			if !attached[b.TargetGroup] {
				return configError(subject, fmt.Sprintf("binding names target group %q which is not attached", b.TargetGroup))
			}
			if !used[b.Template] {
				return configError(subject, fmt.Sprintf("binding names template %q which is not attached", b.Template))
			}
		}
	}
	return nil
}

func configError(subject, reason string) error {
	return &model.ConfigurationError{Subject: subject, Reason: reason}
}

package taxonomy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type TaskType struct {
	Display           string   `yaml:"display" json:"display"`
	RequiresTarget    bool     `yaml:"requires_target" json:"requires_target"`
	DefaultMeasure    string   `yaml:"default_measure" json:"default_measure"`
	AllowedProcedures []string `yaml:"allowed_procedures" json:"allowed_procedures"`
}

type Catalog struct {
	TaskTypes map[string]TaskType `yaml:"task_types" json:"task_types"`
	Licences  []string            `yaml:"licences" json:"licences"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.TaskTypes) == 0 {
		return Catalog{}, fmt.Errorf("taxonomy catalog has no task types")
	}
	return cat, nil
}

func (c Catalog) LookupTaskType(key string) (TaskType, bool) {
	if c.TaskTypes == nil {
		return TaskType{}, false
	}
	if tt, ok := c.TaskTypes[strings.ToLower(key)]; ok {
		return tt, true
	}
	for k, v := range c.TaskTypes {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return TaskType{}, false
}

func (c Catalog) ValidLicence(licence string) bool {
	if licence == "" {
		return true
	}
	for _, l := range c.Licences {
		if strings.EqualFold(l, licence) {
			return true
		}
	}
	return false
}

func DefaultCatalog() Catalog {
	return Catalog{
		TaskTypes: map[string]TaskType{
			"classification": {
				Display:           "Supervised Classification",
				RequiresTarget:    true,
				DefaultMeasure:    "predictive_accuracy",
				AllowedProcedures: []string{"crossvalidation", "holdout", "leave_one_out"},
			},
			"regression": {
				Display:           "Supervised Regression",
				RequiresTarget:    true,
				DefaultMeasure:    "mean_absolute_error",
				AllowedProcedures: []string{"crossvalidation", "holdout"},
			},
			"clustering": {
				Display:        "Clustering",
				RequiresTarget: false,
				DefaultMeasure: "silhouette",
			},
			"learning_curve": {
				Display:           "Learning Curve",
				RequiresTarget:    true,
				DefaultMeasure:    "predictive_accuracy",
				AllowedProcedures: []string{"crossvalidation"},
			},
		},
		Licences: []string{"Public", "CC0", "CC-BY", "CC-BY-SA", "other"},
	}
}

package service

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// StepTemplate is the fixed step list for one workflow type, chosen once at
// workflow creation time.
type StepTemplate struct {
	Steps             []string `yaml:"steps"`
	RequiresCommittee bool     `yaml:"requires_committee"`
}

// WorkflowData is the engine's startup data: step templates per workflow
// type and the static partner-institution routing table. New workflow types
// and partners are data changes, not code changes.
type WorkflowData struct {
	Templates map[repository.WorkflowType]StepTemplate `yaml:"templates"`
	Partners  map[string]string                        `yaml:"partners"` // institution code → portal URL
}

// DefaultWorkflowData returns the built-in templates and partner table.
func DefaultWorkflowData() *WorkflowData {
	return &WorkflowData{
		Templates: map[repository.WorkflowType]StepTemplate{
			repository.WorkflowLegalDeposit: {
				Steps: []string{
					"verification_demande",
					"validation_intervenants",
					"controle_bibliographique",
					"attribution_numeros",
					"reception_exemplaires",
				},
			},
			repository.WorkflowReproduction: {
				Steps: []string{
					"verification_demande",
					"evaluation_faisabilite",
					"devis_et_paiement",
					"numerisation",
					"livraison_documents",
				},
			},
			repository.WorkflowManuscriptReview: {
				Steps: []string{
					"verification_demande",
					"examen_preliminaire",
					"evaluation_scientifique",
					"decision_comite",
					"notification_resultat",
				},
				RequiresCommittee: true,
			},
		},
		Partners: map[string]string{
			"AR": "https://archives.example.org/depot",
			"CM": "https://cinematheque.example.org/depot",
		},
	}
}

// LoadWorkflowData returns the defaults, overlaid with the YAML file at
// path when one is configured.
func LoadWorkflowData(path string) (*WorkflowData, error) {
	data := DefaultWorkflowData()
	if path == "" {
		return data, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow data file: %w", err)
	}

	var override WorkflowData
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse workflow data file: %w", err)
	}

	for wtype, tpl := range override.Templates {
		if !wtype.Valid() {
			return nil, fmt.Errorf("workflow data file: unknown workflow type %q", wtype)
		}
		if len(tpl.Steps) == 0 {
			return nil, fmt.Errorf("workflow data file: template %q has no steps", wtype)
		}
		data.Templates[wtype] = tpl
	}
	for code, url := range override.Partners {
		data.Partners[code] = url
	}
	return data, nil
}

// Template returns the step template for a workflow type.
func (d *WorkflowData) Template(wtype repository.WorkflowType) (StepTemplate, bool) {
	tpl, ok := d.Templates[wtype]
	return tpl, ok
}

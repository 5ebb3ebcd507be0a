package schemas

import "strings"

// -- Task Registry Schemas --

// TaskDescriptor is one entry of the remote task registry.
type TaskDescriptor struct {
	ID          string      `json:"id" yaml:"id"`
	EnvID       string      `json:"envId" yaml:"envId"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Difficulty  string      `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Platform    Platform    `json:"platform,omitempty" yaml:"platform,omitempty"`
	Tags        []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Schema      *TaskSchema `json:"params,omitempty" yaml:"params,omitempty"`
}

// MatchesDifficulty compares difficulty labels case-insensitively.
func (t TaskDescriptor) MatchesDifficulty(difficulty string) bool {
	return strings.EqualFold(strings.TrimSpace(t.Difficulty), strings.TrimSpace(difficulty))
}

// TaskSchema is the subset of JSON Schema the environments use to describe
// their finish parameters.
type TaskSchema struct {
	Type                 string                    `json:"type,omitempty" yaml:"type,omitempty"`
	Properties           map[string]PropertySchema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty" yaml:"required,omitempty"`
	AdditionalProperties *bool                     `json:"additionalProperties,omitempty" yaml:"additionalProperties,omitempty"`
}

// AllowsAdditional reports whether fields outside Properties are accepted.
// Absent means false: environments reject what they don't know.
func (s *TaskSchema) AllowsAdditional() bool {
	return s != nil && s.AdditionalProperties != nil && *s.AdditionalProperties
}

// PropertySchema describes a single parameter.
type PropertySchema struct {
	Type        string        `json:"type,omitempty" yaml:"type,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Const       interface{}   `json:"const,omitempty" yaml:"const,omitempty"`
	Enum        []interface{} `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// IsConst reports whether the server fixes this field's value.
func (p PropertySchema) IsConst() bool {
	return p.Const != nil
}

package domain

import "time"

// TriggerKind selects which torrent event instantiates a task from a playlet.
type TriggerKind string

const (
	TriggerTorrentAdded     TriggerKind = "torrent_added"
	TriggerDownloadComplete TriggerKind = "download_complete"
	TriggerMetadataReceived TriggerKind = "metadata_received"
	TriggerSeedingRatio     TriggerKind = "seeding_ratio"
	TriggerFolderWatch      TriggerKind = "folder_watch"
)

// Trigger is a tagged variant: Ratio is only meaningful for seeding_ratio,
// Path only for folder_watch.
type Trigger struct {
	Kind  TriggerKind `json:"kind" yaml:"kind"`
	Ratio float64     `json:"ratio,omitempty" yaml:"ratio,omitempty"`
	Path  string      `json:"path,omitempty" yaml:"path,omitempty"`
}

type ConditionField string

const (
	FieldName      ConditionField = "name"
	FieldTotalSize ConditionField = "total_size"
	FieldFileCount ConditionField = "file_count"
)

type ConditionOperator string

const (
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "not_contains"
	OpStartsWith  ConditionOperator = "starts_with"
	OpEndsWith    ConditionOperator = "ends_with"
	OpEquals      ConditionOperator = "equals"
	OpRegex       ConditionOperator = "regex"
	OpGreaterThan ConditionOperator = "gt"
	OpLessThan    ConditionOperator = "lt"
	OpBetween     ConditionOperator = "between"
)

// Condition is a single predicate over a torrent. Numeric values are decimal
// strings; total_size is expressed in MB. Value2 is the upper bound of between.
type Condition struct {
	Field    ConditionField    `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    string            `json:"value" yaml:"value"`
	Value2   string            `json:"value2,omitempty" yaml:"value2,omitempty"`
	Negate   bool              `json:"negate,omitempty" yaml:"negate,omitempty"`
}

type ConditionLogic string

const (
	LogicAnd ConditionLogic = "and"
	LogicOr  ConditionLogic = "or"
)

type FileCategory string

const (
	CategoryAll      FileCategory = "all"
	CategoryVideo    FileCategory = "video"
	CategoryAudio    FileCategory = "audio"
	CategorySubtitle FileCategory = "subtitle"
	CategoryCustom   FileCategory = "custom"
)

// FileFilter narrows a torrent's file list before actions run.
type FileFilter struct {
	Category      FileCategory `json:"category" yaml:"category"`
	Extensions    []string     `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	MinSizeMB     float64      `json:"min_size_mb,omitempty" yaml:"min_size_mb,omitempty"`
	NamePattern   string       `json:"name_pattern,omitempty" yaml:"name_pattern,omitempty"`
	SelectLargest bool         `json:"select_largest,omitempty" yaml:"select_largest,omitempty"`
}

// Playlet is a user-defined automation rule. Action order is execution order.
type Playlet struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Enabled        bool           `json:"enabled" yaml:"enabled"`
	Trigger        Trigger        `json:"trigger" yaml:"trigger"`
	Conditions     []Condition    `json:"conditions" yaml:"conditions"`
	ConditionLogic ConditionLogic `json:"condition_logic" yaml:"condition_logic"`
	FileFilter     *FileFilter    `json:"file_filter,omitempty" yaml:"file_filter,omitempty"`
	Actions        []Action       `json:"actions" yaml:"actions"`
	CreatedAt      time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"-"`
}

// Action returns the live action definition with the given id.
func (p *Playlet) Action(id string) (Action, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

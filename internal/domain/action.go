package domain

type ActionType string

const (
	ActionCast         ActionType = "cast"
	ActionMove         ActionType = "move"
	ActionNotify       ActionType = "notify"
	ActionPlay         ActionType = "play"
	ActionSubtitle     ActionType = "subtitle"
	ActionAutomation   ActionType = "automation"
	ActionDelay        ActionType = "delay"
	ActionWebhook      ActionType = "webhook"
	ActionDeleteSource ActionType = "delete_source"
)

// ActionTypes lists every action type the engine knows how to execute.
var ActionTypes = []ActionType{
	ActionCast,
	ActionMove,
	ActionNotify,
	ActionPlay,
	ActionSubtitle,
	ActionAutomation,
	ActionDelay,
	ActionWebhook,
	ActionDeleteSource,
}

// Action is one configured step of a playlet. Exactly one option block,
// matching Type, is expected to be set (Notify carries no options).
type Action struct {
	ID           string              `json:"id" yaml:"id"`
	Type         ActionType          `json:"type" yaml:"type"`
	Cast         *CastAction         `json:"cast,omitempty" yaml:"cast,omitempty"`
	Move         *MoveAction         `json:"move,omitempty" yaml:"move,omitempty"`
	Play         *PlayAction         `json:"play,omitempty" yaml:"play,omitempty"`
	Subtitle     *SubtitleAction     `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Automation   *AutomationAction   `json:"automation,omitempty" yaml:"automation,omitempty"`
	Delay        *DelayAction        `json:"delay,omitempty" yaml:"delay,omitempty"`
	Webhook      *WebhookAction      `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	DeleteSource *DeleteSourceAction `json:"delete_source,omitempty" yaml:"delete_source,omitempty"`
}

type CastAction struct {
	DeviceID string `json:"device_id,omitempty" yaml:"device_id,omitempty"`
}

type MoveAction struct {
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

type PlayAction struct {
	App         string `json:"app,omitempty" yaml:"app,omitempty"`
	UsePlaylist bool   `json:"use_playlist,omitempty" yaml:"use_playlist,omitempty"`
}

type SubtitleAction struct {
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty"`
}

type AutomationMethod string

const (
	AutomationShell       AutomationMethod = "shell"
	AutomationAppleScript AutomationMethod = "applescript"
	AutomationShortcut    AutomationMethod = "shortcut"
)

type AutomationAction struct {
	Method       AutomationMethod `json:"method" yaml:"method"`
	Script       string           `json:"script,omitempty" yaml:"script,omitempty"`
	ShortcutName string           `json:"shortcut_name,omitempty" yaml:"shortcut_name,omitempty"`
}

type DelayUnit string

const (
	DelaySeconds DelayUnit = "seconds"
	DelayMinutes DelayUnit = "minutes"
	DelayHours   DelayUnit = "hours"
	DelayDays    DelayUnit = "days"
	DelayWeeks   DelayUnit = "weeks"
	DelayMonths  DelayUnit = "months"
)

// DelayAction waits Amount units before the next action runs.
type DelayAction struct {
	Amount int64     `json:"amount" yaml:"amount"`
	Unit   DelayUnit `json:"unit,omitempty" yaml:"unit,omitempty"`
}

type WebhookAction struct {
	URL    string `json:"url" yaml:"url"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
}

type DeleteSourceAction struct {
	DeleteFiles bool `json:"delete_files" yaml:"delete_files"`
}

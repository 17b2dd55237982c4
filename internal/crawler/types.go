package crawler

import (
	"strconv"
	"strings"
	"time"
)

// Label tells the router which extractor a task was queued for.
type Label string

// Supported task labels.
const (
	LabelProfile  Label = "PROFILE"
	LabelPost     Label = "POST"
	LabelHashtag  Label = "HASHTAG"
	LabelLocation Label = "LOCATION"
)

// ParseLabel maps free-form input onto a Label, defaulting to LabelProfile.
func ParseLabel(raw string) Label {
	switch Label(strings.ToUpper(strings.TrimSpace(raw))) {
	case LabelPost:
		return LabelPost
	case LabelHashtag:
		return LabelHashtag
	case LabelLocation:
		return LabelLocation
	default:
		return LabelProfile
	}
}

// Task is one unit of crawl work. Tasks are values; retries produce a copy
// with Attempt incremented.
type Task struct {
	URL      string
	Label    Label
	UserData map[string]any
	Attempt  int
}

// NewTask builds a Task holding its own copy of userData.
func NewTask(url string, label Label, userData map[string]any) Task {
	if label == "" {
		label = LabelProfile
	}
	data := make(map[string]any, len(userData))
	for k, v := range userData {
		data[k] = v
	}
	return Task{URL: url, Label: label, UserData: data}
}

// IntParam reads an integer from user data, accepting the loose shapes that
// JSON and YAML decoders produce. Keys match case-insensitively because
// config loading lowercases them. Missing or malformed values yield fallback.
func (t Task) IntParam(key string, fallback int) int {
	raw, ok := t.param(key)
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}

func (t Task) param(key string) (any, bool) {
	if v, ok := t.UserData[key]; ok {
		return v, true
	}
	for k, v := range t.UserData {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// Retried returns a copy of the task for the next attempt.
func (t Task) Retried() Task {
	next := NewTask(t.URL, t.Label, t.UserData)
	next.Attempt = t.Attempt + 1
	return next
}

// Verdict is the PageGate classification of a rendered page.
type Verdict string

// Page verdicts, in the order the gate checks for them.
const (
	VerdictOK             Verdict = "OK"
	VerdictLoginWall      Verdict = "LOGIN_WALL"
	VerdictTransientError Verdict = "TRANSIENT_ERROR"
	VerdictSkeleton       Verdict = "SKELETON"
)

// RunContext carries per-run values that every component needs. It is built
// once at startup and passed explicitly.
type RunContext struct {
	ID        string
	StartedAt time.Time
	ReportURL string
}

// ArtifactPath scopes a flat artifact key to this run.
func (rc RunContext) ArtifactPath(key string) string {
	if rc.ID == "" {
		return key
	}
	return "runs/" + rc.ID + "/" + key
}

// Cookie is a login cookie injected before navigation. SameSite is one of
// "Strict", "Lax", "None" or empty.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	SameSite string
}

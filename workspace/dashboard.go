package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Keksclan/rawrFetch/apiclient"
)

var (
	// ErrUnknownWidget is returned when a layout contains a widget type this
	// client does not know.
	ErrUnknownWidget = errors.New("workspace: unknown widget type")

	// ErrInvalidWidget is returned when a widget config fails validation.
	ErrInvalidWidget = errors.New("workspace: invalid widget config")
)

// WidgetType tags the config variant of a [Widget].
type WidgetType string

const (
	WidgetChart    WidgetType = "chart"
	WidgetStat     WidgetType = "stat"
	WidgetTaskList WidgetType = "task-list"
	WidgetActivity WidgetType = "activity"
)

// WidgetConfig is implemented by the per-type config structs.
type WidgetConfig interface {
	Type() WidgetType
	validate() error
}

// ChartWidget renders a time series.
type ChartWidget struct {
	Chart  string `json:"chart"` // line, bar or pie
	Metric string `json:"metric"`
	Range  string `json:"range,omitempty"`
}

func (ChartWidget) Type() WidgetType { return WidgetChart }

func (c ChartWidget) validate() error {
	switch c.Chart {
	case "line", "bar", "pie":
	default:
		return fmt.Errorf("%w: chart %q", ErrInvalidWidget, c.Chart)
	}
	if c.Metric == "" {
		return fmt.Errorf("%w: chart without metric", ErrInvalidWidget)
	}
	return nil
}

// StatWidget shows a single number.
type StatWidget struct {
	Metric string `json:"metric"`
	Unit   string `json:"unit,omitempty"`
}

func (StatWidget) Type() WidgetType { return WidgetStat }

func (s StatWidget) validate() error {
	if s.Metric == "" {
		return fmt.Errorf("%w: stat without metric", ErrInvalidWidget)
	}
	return nil
}

// TaskListWidget lists open tasks.
type TaskListWidget struct {
	Limit         int  `json:"limit"`
	ShowCompleted bool `json:"showCompleted,omitempty"`
}

func (TaskListWidget) Type() WidgetType { return WidgetTaskList }

func (t TaskListWidget) validate() error {
	if t.Limit <= 0 {
		return fmt.Errorf("%w: task list limit %d", ErrInvalidWidget, t.Limit)
	}
	return nil
}

// ActivityWidget shows the recent activity feed.
type ActivityWidget struct {
	Limit int `json:"limit"`
}

func (ActivityWidget) Type() WidgetType { return WidgetActivity }

func (a ActivityWidget) validate() error {
	if a.Limit <= 0 {
		return fmt.Errorf("%w: activity limit %d", ErrInvalidWidget, a.Limit)
	}
	return nil
}

// Position places a widget on the dashboard grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Widget is one dashboard tile. Config holds one of ChartWidget, StatWidget,
// TaskListWidget or ActivityWidget.
type Widget struct {
	ID             string
	Title          string
	Position       Position
	RefreshSeconds int
	Config         WidgetConfig
}

// RefreshInterval returns how often the widget wants fresh data, or zero.
func (w Widget) RefreshInterval() time.Duration {
	return time.Duration(max(w.RefreshSeconds, 0)) * time.Second
}

type wireWidget struct {
	ID             string          `json:"id"`
	Type           WidgetType      `json:"type"`
	Title          string          `json:"title"`
	Position       Position        `json:"position"`
	RefreshSeconds int             `json:"refreshInterval,omitempty"`
	Config         json.RawMessage `json:"config"`
}

// UnmarshalJSON decodes the config variant selected by "type" and validates
// it.
func (w *Widget) UnmarshalJSON(data []byte) error {
	var raw wireWidget
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var cfg WidgetConfig
	switch raw.Type {
	case WidgetChart:
		cfg = &ChartWidget{}
	case WidgetStat:
		cfg = &StatWidget{}
	case WidgetTaskList:
		cfg = &TaskListWidget{}
	case WidgetActivity:
		cfg = &ActivityWidget{}
	default:
		return fmt.Errorf("%w: %q (widget %s)", ErrUnknownWidget, raw.Type, raw.ID)
	}
	if len(raw.Config) > 0 {
		if err := json.Unmarshal(raw.Config, cfg); err != nil {
			return fmt.Errorf("widget %s config: %w", raw.ID, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("widget %s: %w", raw.ID, err)
	}

	*w = Widget{
		ID:             raw.ID,
		Title:          raw.Title,
		Position:       raw.Position,
		RefreshSeconds: raw.RefreshSeconds,
		Config:         deref(cfg),
	}
	return nil
}

// MarshalJSON writes the same shape UnmarshalJSON reads.
func (w Widget) MarshalJSON() ([]byte, error) {
	if w.Config == nil {
		return nil, fmt.Errorf("%w: widget %s has no config", ErrInvalidWidget, w.ID)
	}
	cfg, err := json.Marshal(w.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireWidget{
		ID:             w.ID,
		Type:           w.Config.Type(),
		Title:          w.Title,
		Position:       w.Position,
		RefreshSeconds: w.RefreshSeconds,
		Config:         cfg,
	})
}

// deref stores configs by value so callers can type-switch on ChartWidget
// rather than *ChartWidget.
func deref(cfg WidgetConfig) WidgetConfig {
	switch c := cfg.(type) {
	case *ChartWidget:
		return *c
	case *StatWidget:
		return *c
	case *TaskListWidget:
		return *c
	case *ActivityWidget:
		return *c
	}
	return cfg
}

// Layout is the dashboard of the current user.
type Layout struct {
	Columns int      `json:"columns"`
	Widgets []Widget `json:"widgets"`
}

// DashboardLayout fetches GET /dashboard/layout.
func DashboardLayout(ctx context.Context, api *apiclient.Client) (Layout, error) {
	return apiclient.GetJSON[Layout](ctx, api, "/dashboard/layout", nil)
}

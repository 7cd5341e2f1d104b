package notify

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/snapline-io/snapline/pkg/types"
)

// ConsoleSink writes alerts to the terminal with color-coded severity.
type ConsoleSink struct{}

// NewConsoleSink creates a new console sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes the alert to the terminal.
func (s *ConsoleSink) Send(_ context.Context, alert types.Alert) error {
	var prefix string
	switch alert.Level {
	case types.AlertLevelError:
		prefix = color.RedString("[ERROR]")
	case types.AlertLevelWarning:
		prefix = color.YellowString("[WARN]")
	default:
		prefix = color.CyanString("[INFO]")
	}

	if alert.SnapshotID != "" {
		fmt.Printf("%s [%s] %s\n", prefix, alert.SnapshotID, alert.Message)
		return nil
	}
	fmt.Printf("%s %s\n", prefix, alert.Message)
	return nil
}

// Package main provides the vigil-status helper.
// This binary prints a one-line summary for a project: whether a
// watchdog is running there and how many reminders are waiting. It is
// read-only and safe to call from shell prompts or editor status bars.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/thebtf/vigil/internal/config"
	"github.com/thebtf/vigil/internal/daemon"
	"github.com/thebtf/vigil/internal/reminders"
	"github.com/thebtf/vigil/pkg/models"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

func main() {
	// Project root from the first argument, current directory otherwise
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		fmt.Println(formatOffline(colorsEnabled()))
		return
	}

	pid, err := daemon.ReadPIDFile(config.PIDFilePath(absRoot))
	running := err == nil && pid != 0 && daemon.IsProcessRunning(pid)

	records, err := reminders.NewStore(config.ReminderLogPath(absRoot)).Read()
	if err != nil {
		records = nil
	}

	fmt.Println(formatStatusLine(running, records))
}

// colorsEnabled reports whether output should carry ANSI colors.
// NO_COLOR and TERM=dumb disable them; VIGIL_STATUS_COLORS overrides both.
func colorsEnabled() bool {
	useColors := os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
	if os.Getenv("VIGIL_STATUS_COLORS") == "false" {
		useColors = false
	} else if os.Getenv("VIGIL_STATUS_COLORS") == "true" {
		useColors = true
	}
	return useColors
}

// formatStatusLine formats the status line output.
func formatStatusLine(running bool, records []models.ReminderRecord) string {
	useColors := colorsEnabled()

	format := os.Getenv("VIGIL_STATUS_FORMAT")
	if format == "" {
		format = "default"
	}

	if !running {
		return formatOffline(useColors)
	}

	warnings, infos := 0, 0
	for _, record := range records {
		if record.Severity == models.SeverityWarning {
			warnings++
		} else {
			infos++
		}
	}

	switch format {
	case "compact":
		return formatCompact(warnings, infos, useColors)
	case "minimal":
		return formatMinimal(warnings, infos, useColors)
	default:
		return formatDefault(warnings, infos, useColors)
	}
}

// formatDefault returns the default status line format.
func formatDefault(warnings, infos int, useColors bool) string {
	// [vigil] ● warnings:3 | info:1
	prefix := "[vigil]"
	indicator := indicatorGlyph(warnings, useColors)
	if useColors {
		prefix = colorCyan + prefix + colorReset
	}

	parts := []string{}
	if warnings > 0 {
		part := fmt.Sprintf("warnings:%d", warnings)
		if useColors {
			part = colorYellow + part + colorReset
		}
		parts = append(parts, part)
	}
	if infos > 0 {
		parts = append(parts, fmt.Sprintf("info:%d", infos))
	}
	if len(parts) == 0 {
		parts = append(parts, "clear")
	}

	result := prefix + " " + indicator
	for i, part := range parts {
		if i == 0 {
			result += " " + part
		} else {
			result += " | " + part
		}
	}

	return result
}

// formatCompact returns a compact status line.
func formatCompact(warnings, infos int, useColors bool) string {
	// [v] ● 3w/1i
	prefix := "[v]"
	if useColors {
		prefix = colorCyan + prefix + colorReset
	}
	return fmt.Sprintf("%s %s %dw/%di", prefix, indicatorGlyph(warnings, useColors), warnings, infos)
}

// formatMinimal returns a minimal status line.
func formatMinimal(warnings, infos int, useColors bool) string {
	// ● 4
	return fmt.Sprintf("%s %d", indicatorGlyph(warnings, useColors), warnings+infos)
}

// indicatorGlyph returns the running indicator, yellow while warnings wait.
func indicatorGlyph(warnings int, useColors bool) string {
	if !useColors {
		return "●"
	}
	if warnings > 0 {
		return colorYellow + "●" + colorReset
	}
	return colorGreen + "●" + colorReset
}

// formatOffline returns the status shown when no watchdog is running.
func formatOffline(useColors bool) string {
	if useColors {
		return colorCyan + "[vigil]" + colorReset + " " + colorGray + "○" + colorReset
	}
	return "[vigil] ○"
}

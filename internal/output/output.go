// Package output provides styled terminal output helpers (success, error,
// warning, entity formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/caleb/fittrack/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeDatabaseError = "database_error"
	ErrCodeSyncError     = "sync_error"
	ErrCodeAuthRequired  = "auth_required"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// ShortID shortens a local id for display. Local ids are UUIDs; the first
// block is enough to disambiguate within one database.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatWeight renders a weight in kg without trailing zeros
func FormatWeight(kg float64) string {
	return strconv.FormatFloat(kg, 'f', -1, 64) + "kg"
}

// FormatSets renders a set list as "8x60kg, 6x65kg". Bodyweight sets render
// as the bare rep count.
func FormatSets(sets []models.SetEntry) string {
	if len(sets) == 0 {
		return ""
	}
	parts := make([]string, len(sets))
	for i, s := range sets {
		if s.Weight > 0 {
			parts[i] = fmt.Sprintf("%dx%s", s.Reps, FormatWeight(s.Weight))
		} else {
			parts[i] = strconv.Itoa(s.Reps)
		}
	}
	return strings.Join(parts, ", ")
}

// FormatProfileLine formats a profile for list output
func FormatProfileLine(localID string, p models.Profile, pending bool) string {
	parts := []string{
		titleStyle.Render(ShortID(localID)),
		p.Name,
	}
	if p.Weight > 0 {
		parts = append(parts, subtleStyle.Render(FormatWeight(p.Weight)))
	}
	if pending {
		parts = append(parts, PendingBadge())
	}
	return strings.Join(parts, "  ")
}

// FormatWorkoutLine formats a workout session for list output, sized to the
// current terminal.
func FormatWorkoutLine(localID string, w models.WorkoutSession, pending bool) string {
	return FormatWorkoutLineWidth(localID, w, pending, TerminalWidth(defaultWidth))
}

// FormatWorkoutLineWidth formats a workout session for list output. Notes get
// whatever room the fixed columns leave within width, truncated to fit.
func FormatWorkoutLineWidth(localID string, w models.WorkoutSession, pending bool, width int) string {
	parts := []string{
		titleStyle.Render(ShortID(localID)),
		accentStyle.Render(w.Date),
		w.ExerciseID,
	}
	if sets := FormatSets(w.Sets); sets != "" {
		parts = append(parts, sets)
	}
	if w.Notes != "" {
		room := width - lipgloss.Width(strings.Join(parts, "  ")) - 2
		if pending {
			room -= lipgloss.Width(PendingBadge()) + 2
		}
		if notes := truncate(w.Notes, room); notes != "" {
			parts = append(parts, subtleStyle.Render(notes))
		}
	}
	if pending {
		parts = append(parts, PendingBadge())
	}
	return strings.Join(parts, "  ")
}

// truncate shortens s to max runes, ending in "..." when it was cut. A max
// too small for any content drops the text entirely.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max < 4 {
		return ""
	}
	return string(runes[:max-3]) + "..."
}

// PendingBadge marks an entity with local changes not yet synced
func PendingBadge() string {
	return warningStyle.Render("[pending]")
}

// FormatLastSync renders the last successful sync time for status output
func FormatLastSync(t *time.Time) string {
	if t == nil {
		return subtleStyle.Render("never synced")
	}
	return fmt.Sprintf("last synced %s", FormatTimeAgo(*t))
}

// FormatOnline renders connectivity state
func FormatOnline(online bool) string {
	if online {
		return successStyle.Render("online")
	}
	return warningStyle.Render("offline")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nPENDING CHANGES:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

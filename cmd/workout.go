package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caleb/fittrack/internal/dateparse"
	"github.com/caleb/fittrack/internal/input"
	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/output"
	"github.com/caleb/fittrack/internal/store"
)

var workoutCmd = &cobra.Command{
	Use:     "workout",
	Aliases: []string{"workouts", "w"},
	Short:   "Manage workout sessions",
	GroupID: "core",
}

var workoutLogCmd = &cobra.Command{
	Use:   "log <exercise>",
	Short: "Log a workout session",
	Long: `Logs an exercise session for a profile.

Sets are given as rep x weight pairs: --sets "8x60,6x62.5,12" logs two
weighted sets and one bodyweight set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exercise := strings.TrimSpace(args[0])
		if exercise == "" {
			output.Error("exercise required")
			return fmt.Errorf("empty exercise")
		}

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		profileRef, _ := cmd.Flags().GetString("profile")
		if profileRef == "" {
			output.Error("--profile required")
			return fmt.Errorf("missing profile")
		}
		profile, err := resolveProfile(a.DB, profileRef)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		date, err := resolveDate(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		setsSpec, _ := cmd.Flags().GetString("sets")
		sets, err := parseSets(setsSpec)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		rawNotes, _ := cmd.Flags().GetString("notes")
		notes, err := input.ExpandValue(rawNotes)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		workout := models.WorkoutSession{
			ProfileLocalID: profile.LocalID,
			ExerciseID:     exercise,
			Date:           date,
			Sets:           sets,
			Notes:          notes,
		}
		localID := models.NewLocalID()
		if err := a.DB.CreateWorkout(localID, workout); err != nil {
			output.Error("create workout: %v", err)
			return err
		}

		payload, err := json.Marshal(workout)
		if err != nil {
			return err
		}
		m := models.NewMutation(models.KindWorkoutSession, localID, models.ActionCreate, payload)
		if err := recordAndSync(cmd.Context(), a, m); err != nil {
			output.Error("queue change: %v", err)
			return err
		}

		output.Success("Logged %s on %s for %s (%s)", exercise, date, profile.Profile.Name, output.ShortID(localID))
		return nil
	},
}

var workoutSetCmd = &cobra.Command{
	Use:   "set <workout>",
	Short: "Update a workout session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		rec, err := resolveWorkout(a.DB, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		workout := rec.Workout
		if cmd.Flags().Changed("exercise") {
			exercise, _ := cmd.Flags().GetString("exercise")
			if strings.TrimSpace(exercise) == "" {
				output.Error("exercise cannot be empty")
				return fmt.Errorf("empty exercise")
			}
			workout.ExerciseID = strings.TrimSpace(exercise)
		}
		if cmd.Flags().Changed("date") {
			date, err := resolveDate(cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			workout.Date = date
		}
		if cmd.Flags().Changed("sets") {
			spec, _ := cmd.Flags().GetString("sets")
			sets, err := parseSets(spec)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			workout.Sets = sets
		}
		if cmd.Flags().Changed("notes") {
			raw, _ := cmd.Flags().GetString("notes")
			notes, err := input.ExpandValue(raw)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			workout.Notes = notes
		}

		if err := a.DB.UpdateWorkout(rec.LocalID, workout); err != nil {
			output.Error("update workout: %v", err)
			return err
		}

		payload, err := json.Marshal(workout)
		if err != nil {
			return err
		}
		m := models.NewMutation(models.KindWorkoutSession, rec.LocalID, models.ActionUpdate, payload)
		if err := recordAndSync(cmd.Context(), a, m); err != nil {
			output.Error("queue change: %v", err)
			return err
		}

		output.Success("Updated workout %s", output.ShortID(rec.LocalID))
		return nil
	},
}

var workoutRmCmd = &cobra.Command{
	Use:   "rm <workout>",
	Short: "Delete a workout session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		rec, err := resolveWorkout(a.DB, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		if err := a.DB.DeleteWorkout(rec.LocalID); err != nil {
			output.Error("delete workout: %v", err)
			return err
		}
		m := models.NewMutation(models.KindWorkoutSession, rec.LocalID, models.ActionDelete, nil)
		if err := recordAndSync(cmd.Context(), a, m); err != nil {
			output.Error("queue change: %v", err)
			return err
		}

		output.Success("Deleted workout %s", output.ShortID(rec.LocalID))
		return nil
	},
}

var workoutLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List workout sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		var profileLocalID string
		if ref, _ := cmd.Flags().GetString("profile"); ref != "" {
			profile, err := resolveProfile(a.DB, ref)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			profileLocalID = profile.LocalID
		}

		workouts, err := a.DB.ListWorkouts(profileLocalID)
		if err != nil {
			output.Error("list workouts: %v", err)
			return err
		}

		jsonOut, _ := cmd.Flags().GetBool("json")
		if jsonOut {
			type jsonWorkout struct {
				LocalID        string            `json:"localId"`
				ProfileLocalID string            `json:"profileLocalId"`
				ExerciseID     string            `json:"exerciseId"`
				Date           string            `json:"date"`
				Sets           []models.SetEntry `json:"sets,omitempty"`
				Notes          string            `json:"notes,omitempty"`
				Pending        bool              `json:"pending"`
			}
			out := make([]jsonWorkout, 0, len(workouts))
			for _, rec := range workouts {
				out = append(out, jsonWorkout{
					LocalID:        rec.LocalID,
					ProfileLocalID: rec.Workout.ProfileLocalID,
					ExerciseID:     rec.Workout.ExerciseID,
					Date:           rec.Workout.Date,
					Sets:           rec.Workout.Sets,
					Notes:          rec.Workout.Notes,
					Pending:        hasPending(a, models.KindWorkoutSession, rec.LocalID),
				})
			}
			return output.JSON(out)
		}

		if len(workouts) == 0 {
			fmt.Println("No workouts logged.")
			return nil
		}
		width := output.TerminalWidth(0)
		for _, rec := range workouts {
			fmt.Println(output.FormatWorkoutLineWidth(rec.LocalID, rec.Workout, hasPending(a, models.KindWorkoutSession, rec.LocalID), width))
		}
		return nil
	},
}

// resolveDate returns the --date flag value or today. Shorthand like
// "yesterday", "-3d" and weekday names resolves to the day it names.
func resolveDate(cmd *cobra.Command) (string, error) {
	date, _ := cmd.Flags().GetString("date")
	if date == "" {
		return time.Now().Format("2006-01-02"), nil
	}
	return dateparse.ParseDate(date)
}

// parseSets parses "8x60,6x62.5,12" into set entries. A bare number is a
// bodyweight set.
func parseSets(spec string) ([]models.SetEntry, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	var sets []models.SetEntry
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		repsStr, weightStr, weighted := strings.Cut(part, "x")
		reps, err := strconv.Atoi(strings.TrimSpace(repsStr))
		if err != nil || reps <= 0 {
			return nil, fmt.Errorf("invalid set %q (want reps or repsxweight)", part)
		}

		entry := models.SetEntry{Reps: reps}
		if weighted {
			weight, err := strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
			if err != nil || weight < 0 {
				return nil, fmt.Errorf("invalid weight in set %q", part)
			}
			entry.Weight = weight
		}
		sets = append(sets, entry)
	}
	return sets, nil
}

// resolveWorkout finds a workout session by local id prefix.
func resolveWorkout(db *store.DB, ref string) (*store.WorkoutRecord, error) {
	workouts, err := db.ListWorkouts("")
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}

	var matches []store.WorkoutRecord
	for _, rec := range workouts {
		if rec.LocalID == ref {
			r := rec
			return &r, nil
		}
		if strings.HasPrefix(rec.LocalID, ref) {
			matches = append(matches, rec)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no workout matching %q", ref)
	case 1:
		return &matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, rec := range matches {
			ids[i] = output.ShortID(rec.LocalID)
		}
		return nil, fmt.Errorf("%q is ambiguous: %s", ref, strings.Join(ids, ", "))
	}
}

func init() {
	workoutLogCmd.Flags().String("profile", "", "profile the session belongs to")
	workoutLogCmd.Flags().String("date", "", "session date (YYYY-MM-DD, yesterday, -3d, a weekday; default today)")
	workoutLogCmd.Flags().String("sets", "", "sets as repsxweight pairs, comma separated")
	workoutLogCmd.Flags().String("notes", "", "free-form notes (@file to read from a file, - for stdin)")

	workoutSetCmd.Flags().String("exercise", "", "new exercise")
	workoutSetCmd.Flags().String("date", "", "new date (YYYY-MM-DD or shorthand)")
	workoutSetCmd.Flags().String("sets", "", "new sets as repsxweight pairs")
	workoutSetCmd.Flags().String("notes", "", "new notes (@file to read from a file, - for stdin)")

	workoutLsCmd.Flags().String("profile", "", "only sessions for this profile")
	workoutLsCmd.Flags().Bool("json", false, "output as JSON")

	workoutCmd.AddCommand(workoutLogCmd)
	workoutCmd.AddCommand(workoutSetCmd)
	workoutCmd.AddCommand(workoutRmCmd)
	workoutCmd.AddCommand(workoutLsCmd)
	rootCmd.AddCommand(workoutCmd)
}

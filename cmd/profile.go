package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caleb/fittrack/internal/models"
	"github.com/caleb/fittrack/internal/output"
	"github.com/caleb/fittrack/internal/store"
	"github.com/caleb/fittrack/internal/suggest"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	Aliases: []string{"profiles"},
	Short:   "Manage athlete profiles",
	GroupID: "core",
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			output.Error("profile name required")
			return fmt.Errorf("empty name")
		}
		weight, _ := cmd.Flags().GetFloat64("weight")
		if weight < 0 {
			output.Error("weight cannot be negative")
			return fmt.Errorf("invalid weight")
		}

		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		profile := models.Profile{Name: name, Weight: weight}
		localID := models.NewLocalID()
		if err := a.DB.CreateProfile(localID, profile); err != nil {
			output.Error("create profile: %v", err)
			return err
		}

		payload, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		m := models.NewMutation(models.KindProfile, localID, models.ActionCreate, payload)
		if err := recordAndSync(cmd.Context(), a, m); err != nil {
			output.Error("queue change: %v", err)
			return err
		}

		output.Success("Created profile %s (%s)", name, output.ShortID(localID))
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <profile>",
	Short: "Update a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		rec, err := resolveProfile(a.DB, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		profile := rec.Profile
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			if strings.TrimSpace(name) == "" {
				output.Error("profile name cannot be empty")
				return fmt.Errorf("empty name")
			}
			profile.Name = strings.TrimSpace(name)
		}
		if cmd.Flags().Changed("weight") {
			weight, _ := cmd.Flags().GetFloat64("weight")
			if weight < 0 {
				output.Error("weight cannot be negative")
				return fmt.Errorf("invalid weight")
			}
			profile.Weight = weight
		}

		if err := a.DB.UpdateProfile(rec.LocalID, profile); err != nil {
			output.Error("update profile: %v", err)
			return err
		}

		payload, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		m := models.NewMutation(models.KindProfile, rec.LocalID, models.ActionUpdate, payload)
		if err := recordAndSync(cmd.Context(), a, m); err != nil {
			output.Error("queue change: %v", err)
			return err
		}

		output.Success("Updated profile %s", profile.Name)
		return nil
	},
}

var profileRmCmd = &cobra.Command{
	Use:   "rm <profile>",
	Short: "Delete a profile and its workout sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		rec, err := resolveProfile(a.DB, args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		// Sessions go first so the remote never sees a child outliving
		// its parent
		workouts, err := a.DB.ListWorkouts(rec.LocalID)
		if err != nil {
			output.Error("list workouts: %v", err)
			return err
		}
		for _, w := range workouts {
			if err := a.DB.DeleteWorkout(w.LocalID); err != nil {
				output.Error("delete workout %s: %v", output.ShortID(w.LocalID), err)
				return err
			}
			del := models.NewMutation(models.KindWorkoutSession, w.LocalID, models.ActionDelete, nil)
			if err := a.Engine.Queue().Enqueue(del); err != nil {
				output.Error("queue change: %v", err)
				return err
			}
		}

		if err := a.DB.DeleteProfile(rec.LocalID); err != nil {
			output.Error("delete profile: %v", err)
			return err
		}
		m := models.NewMutation(models.KindProfile, rec.LocalID, models.ActionDelete, nil)
		if err := recordAndSync(cmd.Context(), a, m); err != nil {
			output.Error("queue change: %v", err)
			return err
		}

		if len(workouts) > 0 {
			output.Success("Deleted profile %s and %d workout sessions", rec.Profile.Name, len(workouts))
		} else {
			output.Success("Deleted profile %s", rec.Profile.Name)
		}
		return nil
	},
}

var profileLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		profiles, err := a.DB.ListProfiles()
		if err != nil {
			output.Error("list profiles: %v", err)
			return err
		}

		jsonOut, _ := cmd.Flags().GetBool("json")
		if jsonOut {
			type jsonProfile struct {
				LocalID string  `json:"localId"`
				Name    string  `json:"name"`
				Weight  float64 `json:"weight,omitempty"`
				Pending bool    `json:"pending"`
			}
			out := make([]jsonProfile, 0, len(profiles))
			for _, rec := range profiles {
				out = append(out, jsonProfile{
					LocalID: rec.LocalID,
					Name:    rec.Profile.Name,
					Weight:  rec.Profile.Weight,
					Pending: hasPending(a, models.KindProfile, rec.LocalID),
				})
			}
			return output.JSON(out)
		}

		if len(profiles) == 0 {
			fmt.Println("No profiles. Create one with: fittrack profile add <name>")
			return nil
		}
		for _, rec := range profiles {
			fmt.Println(output.FormatProfileLine(rec.LocalID, rec.Profile, hasPending(a, models.KindProfile, rec.LocalID)))
		}
		return nil
	},
}

// hasPending reports whether an entity has a queued mutation.
func hasPending(a *app, kind models.EntityKind, localID string) bool {
	m, err := a.Engine.Queue().Lookup(kind, localID)
	return err == nil && m != nil
}

// resolveProfile finds a profile by local id prefix or exact name.
func resolveProfile(db *store.DB, ref string) (*store.ProfileRecord, error) {
	profiles, err := db.ListProfiles()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	var matches []store.ProfileRecord
	for _, rec := range profiles {
		if rec.LocalID == ref || rec.Profile.Name == ref {
			r := rec
			return &r, nil
		}
		if strings.HasPrefix(rec.LocalID, ref) {
			matches = append(matches, rec)
		}
	}

	switch len(matches) {
	case 0:
		names := make([]string, len(profiles))
		for i, rec := range profiles {
			names[i] = rec.Profile.Name
		}
		if hints := suggest.Names(ref, names); len(hints) > 0 {
			return nil, fmt.Errorf("no profile matching %q (did you mean %s?)", ref, strings.Join(hints, ", "))
		}
		return nil, fmt.Errorf("no profile matching %q", ref)
	case 1:
		return &matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, rec := range matches {
			names[i] = fmt.Sprintf("%s (%s)", rec.Profile.Name, output.ShortID(rec.LocalID))
		}
		return nil, fmt.Errorf("%q is ambiguous: %s", ref, strings.Join(names, ", "))
	}
}

func init() {
	profileAddCmd.Flags().Float64("weight", 0, "body weight in kg")
	profileSetCmd.Flags().String("name", "", "new name")
	profileSetCmd.Flags().Float64("weight", 0, "body weight in kg")
	profileLsCmd.Flags().Bool("json", false, "output as JSON")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileRmCmd)
	profileCmd.AddCommand(profileLsCmd)
	rootCmd.AddCommand(profileCmd)
}

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/doselog/internal/config"
	"github.com/kalambet/doselog/internal/session"
)

const timeDisplay = "2006-01-02 15:04"

// --- login / logout ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store sync credentials",
	Long: `Store the user ID and sync token obtained from the doselog account page.
The server picks the credentials up on its next start; until then sync
stays disabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		token, _ := cmd.Flags().GetString("token")
		if userID == "" || token == "" {
			return fmt.Errorf("both --user and --token are required")
		}

		sess := session.New(config.Dir())
		if err := sess.Login(userID, token); err != nil {
			return err
		}

		printSuccess("Logged in as %s", userID)
		printStep("Restart the server to enable sync: doselog stop && doselog start")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored sync credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := session.New(config.Dir())
		if err := sess.Logout(); err != nil {
			return err
		}
		printSuccess("Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("user", "", "account user ID")
	loginCmd.Flags().String("token", "", "sync token")
}

// --- weight ---

var weightCmd = &cobra.Command{
	Use:   "weight",
	Short: "Track weight entries",
}

var weightAddCmd = &cobra.Command{
	Use:   "add <kg>",
	Short: "Record a weight measurement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kg, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q: %w", args[0], err)
		}
		note, _ := cmd.Flags().GetString("note")
		at, _ := cmd.Flags().GetString("at")

		body := map[string]any{"weight_kg": kg, "note": note}
		if at != "" {
			body["recorded_at"] = at
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/weights", body)
		if err != nil {
			return err
		}

		var entry struct {
			ID       string  `json:"ID"`
			WeightKg float64 `json:"WeightKg"`
		}
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}
		printSuccess("Recorded %.1f kg", kg)
		return nil
	},
}

var weightListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent weight entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/weights?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			ID         string    `json:"ID"`
			RecordedAt time.Time `json:"RecordedAt"`
			WeightKg   float64   `json:"WeightKg"`
			Note       string    `json:"Note"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No weight entries found.")
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  %s  %6.1f kg",
				colorize(colorCyan, e.ID[:8]),
				e.RecordedAt.Local().Format(timeDisplay),
				e.WeightKg,
			)
			if e.Note != "" {
				line += "  " + e.Note
			}
			fmt.Println(line)
		}
		return nil
	},
}

var weightDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a weight entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, "/weights", args[0])
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/weights/"+id)
		if err != nil {
			return err
		}
		var out map[string]any
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Deleted weight entry %s", id[:8])
		return nil
	},
}

func init() {
	weightAddCmd.Flags().String("note", "", "optional note")
	weightAddCmd.Flags().String("at", "", "RFC3339 timestamp (default: now)")
	weightListCmd.Flags().Int("limit", 20, "maximum entries to list")
	weightCmd.AddCommand(weightAddCmd)
	weightCmd.AddCommand(weightListCmd)
	weightCmd.AddCommand(weightDeleteCmd)
}

// --- shot ---

var shotCmd = &cobra.Command{
	Use:   "shot",
	Short: "Track medication injections",
}

var shotAddCmd = &cobra.Command{
	Use:   "add <medication> <dose_mg>",
	Short: "Record an injection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dose, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid dose %q: %w", args[1], err)
		}
		site, _ := cmd.Flags().GetString("site")
		note, _ := cmd.Flags().GetString("note")
		at, _ := cmd.Flags().GetString("at")

		body := map[string]any{
			"medication": args[0],
			"dose_mg":    dose,
			"site":       site,
			"note":       note,
		}
		if at != "" {
			body["injected_at"] = at
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/injections", body)
		if err != nil {
			return err
		}

		var injection map[string]any
		if err := decodeJSON(resp, &injection); err != nil {
			return err
		}
		printSuccess("Recorded %.2f mg %s", dose, args[0])
		return nil
	},
}

var shotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent injections",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/injections?limit=%d", limit))
		if err != nil {
			return err
		}

		var injections []struct {
			ID         string    `json:"ID"`
			InjectedAt time.Time `json:"InjectedAt"`
			Medication string    `json:"Medication"`
			DoseMg     float64   `json:"DoseMg"`
			Site       string    `json:"Site"`
		}
		if err := decodeJSON(resp, &injections); err != nil {
			return err
		}

		if len(injections) == 0 {
			fmt.Println("No injections found.")
			return nil
		}
		for _, in := range injections {
			line := fmt.Sprintf("%s  %s  %s %.2f mg",
				colorize(colorCyan, in.ID[:8]),
				in.InjectedAt.Local().Format(timeDisplay),
				in.Medication,
				in.DoseMg,
			)
			if in.Site != "" {
				line += "  (" + in.Site + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	shotAddCmd.Flags().String("site", "", "injection site, e.g. abdomen")
	shotAddCmd.Flags().String("note", "", "optional note")
	shotAddCmd.Flags().String("at", "", "RFC3339 timestamp (default: now)")
	shotListCmd.Flags().Int("limit", 20, "maximum injections to list")
	shotCmd.AddCommand(shotAddCmd)
	shotCmd.AddCommand(shotListCmd)
}

// --- inventory ---

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Track medication stock",
}

var inventoryAddCmd = &cobra.Command{
	Use:   "add <medication>",
	Short: "Add stock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dose, _ := cmd.Flags().GetFloat64("dose")
		qty, _ := cmd.Flags().GetInt("qty")
		note, _ := cmd.Flags().GetString("note")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/inventory", map[string]any{
			"medication": args[0],
			"dose_mg":    dose,
			"quantity":   qty,
			"note":       note,
		})
		if err != nil {
			return err
		}

		var item map[string]any
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printSuccess("Added %d x %s %.2f mg", qty, args[0], dose)
		return nil
	},
}

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stock",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/inventory")
		if err != nil {
			return err
		}

		var items []struct {
			ID         string  `json:"ID"`
			Medication string  `json:"Medication"`
			DoseMg     float64 `json:"DoseMg"`
			Quantity   int     `json:"Quantity"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No inventory found.")
			return nil
		}
		for _, it := range items {
			fmt.Printf("%s  %s %.2f mg  x%d\n",
				colorize(colorCyan, it.ID[:8]),
				it.Medication,
				it.DoseMg,
				it.Quantity,
			)
		}
		return nil
	},
}

var inventoryUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Use doses from stock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, "/inventory", args[0])
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/inventory/"+id+"/use", map[string]any{"count": count})
		if err != nil {
			return err
		}

		var item struct {
			Medication string `json:"Medication"`
			Quantity   int    `json:"Quantity"`
		}
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printSuccess("Used %d; %d %s doses left", count, item.Quantity, item.Medication)
		return nil
	},
}

func init() {
	inventoryAddCmd.Flags().Float64("dose", 0, "dose per unit in mg")
	inventoryAddCmd.Flags().Int("qty", 1, "number of doses")
	inventoryAddCmd.Flags().String("note", "", "optional note")
	inventoryUseCmd.Flags().Int("count", 1, "doses to use")
	inventoryCmd.AddCommand(inventoryAddCmd)
	inventoryCmd.AddCommand(inventoryListCmd)
	inventoryCmd.AddCommand(inventoryUseCmd)
}

// --- schedule ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage titration schedules",
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create <medication>",
	Short: "Create a titration schedule",
	Long: `Create a titration schedule from ordered phases.

Each --phase is dose_mg:duration_days, for example:
  doselog schedule create semaglutide --phase 0.25:28 --phase 0.5:28 --phase 1.0:28`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phaseSpecs, _ := cmd.Flags().GetStringArray("phase")
		start, _ := cmd.Flags().GetString("start")
		note, _ := cmd.Flags().GetString("note")

		if len(phaseSpecs) == 0 {
			return fmt.Errorf("at least one --phase is required")
		}
		phases := make([]map[string]any, len(phaseSpecs))
		for i, spec := range phaseSpecs {
			dose, days, err := parsePhase(spec)
			if err != nil {
				return err
			}
			phases[i] = map[string]any{"dose_mg": dose, "duration_days": days}
		}

		body := map[string]any{
			"medication": args[0],
			"note":       note,
			"phases":     phases,
		}
		if start != "" {
			body["started_at"] = start
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/schedules", body)
		if err != nil {
			return err
		}

		var created struct {
			Schedule struct {
				ID string `json:"ID"`
			} `json:"schedule"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}
		printSuccess("Created schedule %s with %d phases", created.Schedule.ID[:8], len(phases))
		return nil
	},
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show schedules, or one schedule with its phases",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			resp, err := client.get(cmd.Context(), "/schedules")
			if err != nil {
				return err
			}
			var schedules []struct {
				ID         string    `json:"ID"`
				Medication string    `json:"Medication"`
				StartedAt  time.Time `json:"StartedAt"`
			}
			if err := decodeJSON(resp, &schedules); err != nil {
				return err
			}
			if len(schedules) == 0 {
				fmt.Println("No schedules found.")
				return nil
			}
			for _, s := range schedules {
				fmt.Printf("%s  %s  started %s\n",
					colorize(colorCyan, s.ID[:8]),
					s.Medication,
					s.StartedAt.Local().Format("2006-01-02"),
				)
			}
			return nil
		}

		id, err := resolveID(cmd.Context(), client, "/schedules", args[0])
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/schedules/"+id)
		if err != nil {
			return err
		}
		var detail struct {
			Schedule struct {
				Medication string    `json:"Medication"`
				StartedAt  time.Time `json:"StartedAt"`
				Note       string    `json:"Note"`
			} `json:"schedule"`
			Phases []struct {
				PhaseOrder   int     `json:"PhaseOrder"`
				DoseMg       float64 `json:"DoseMg"`
				DurationDays int     `json:"DurationDays"`
			} `json:"phases"`
		}
		if err := decodeJSON(resp, &detail); err != nil {
			return err
		}

		printStatus("Medication", "%s", detail.Schedule.Medication)
		printStatus("Started", "%s", detail.Schedule.StartedAt.Local().Format("2006-01-02"))
		if detail.Schedule.Note != "" {
			printStatus("Note", "%s", detail.Schedule.Note)
		}
		for _, p := range detail.Phases {
			fmt.Printf("  phase %d: %.2f mg for %d days\n", p.PhaseOrder, p.DoseMg, p.DurationDays)
		}
		return nil
	},
}

var scheduleNextCmd = &cobra.Command{
	Use:   "next <id>",
	Short: "Show the next due dose for a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		everyDays, _ := cmd.Flags().GetInt("every-days")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, "/schedules", args[0])
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/schedules/%s/next?every_days=%d", id, everyDays))
		if err != nil {
			return err
		}

		var next struct {
			Complete   bool    `json:"complete"`
			PhaseOrder int     `json:"phase_order"`
			DoseMg     float64 `json:"dose_mg"`
			DueAt      string  `json:"due_at"`
		}
		if err := decodeJSON(resp, &next); err != nil {
			return err
		}

		if next.Complete {
			printSuccess("Schedule complete — no further doses")
			return nil
		}
		due, err := time.Parse(time.RFC3339, next.DueAt)
		if err != nil {
			return fmt.Errorf("parsing due time: %w", err)
		}
		printStatus("Next dose", "%.2f mg (phase %d)", next.DoseMg, next.PhaseOrder)
		printStatus("Due", "%s", due.Local().Format(timeDisplay))
		return nil
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a schedule and its phases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, "/schedules", args[0])
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/schedules/"+id)
		if err != nil {
			return err
		}
		var out map[string]any
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Deleted schedule %s", id[:8])
		return nil
	},
}

func parsePhase(spec string) (dose float64, days int, err error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid phase %q: want dose_mg:duration_days", spec)
	}
	dose, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid phase dose %q: %w", parts[0], err)
	}
	days, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid phase duration %q: %w", parts[1], err)
	}
	return dose, days, nil
}

func init() {
	scheduleCreateCmd.Flags().StringArray("phase", nil, "phase as dose_mg:duration_days (repeatable)")
	scheduleCreateCmd.Flags().String("start", "", "RFC3339 start time (default: now)")
	scheduleCreateCmd.Flags().String("note", "", "optional note")
	scheduleNextCmd.Flags().Int("every-days", 7, "days between doses")
	scheduleCmd.AddCommand(scheduleCreateCmd)
	scheduleCmd.AddCommand(scheduleShowCmd)
	scheduleCmd.AddCommand(scheduleNextCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show weight and injection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/stats/weight")
		if err != nil {
			return err
		}
		var weight struct {
			Count       int     `json:"count"`
			LatestKg    float64 `json:"latest_kg"`
			MinKg       float64 `json:"min_kg"`
			MaxKg       float64 `json:"max_kg"`
			TrendKgWeek float64 `json:"trend_kg_per_week"`
		}
		if err := decodeJSON(resp, &weight); err != nil {
			return err
		}

		if weight.Count == 0 {
			fmt.Println("No weight entries yet.")
		} else {
			printStatus("Weight entries", "%d", weight.Count)
			printStatus("Latest", "%.1f kg", weight.LatestKg)
			printStatus("Range", "%.1f – %.1f kg", weight.MinKg, weight.MaxKg)
			printStatus("Trend", "%+.2f kg/week", weight.TrendKgWeek)
		}

		resp, err = client.get(cmd.Context(), "/stats/injections")
		if err != nil {
			return err
		}
		var shots struct {
			Count       int     `json:"count"`
			PerWeek     float64 `json:"per_week"`
			TotalDoseMg float64 `json:"total_dose_mg"`
		}
		if err := decodeJSON(resp, &shots); err != nil {
			return err
		}

		if shots.Count > 0 {
			printStatus("Injections", "%d (%.1f/week)", shots.Count, shots.PerWeek)
			printStatus("Total dose", "%.2f mg", shots.TotalDoseMg)
		}
		return nil
	},
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect or trigger synchronization",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/sync/status")
		if err != nil {
			return err
		}

		var st struct {
			Display string `json:"display"`
			Pending int    `json:"pending"`
		}
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printStatus("Sync", "%s", st.Display)
		printStatus("Pending changes", "%d", st.Pending)
		return nil
	},
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Trigger a sync immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Syncing...")
		resp, err := client.post(cmd.Context(), "/sync/now", nil)
		if err != nil {
			return err
		}

		var st struct {
			Display string `json:"display"`
		}
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printSuccess("%s", st.Display)
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncNowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Revert a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configSetCmd.Long = "Valid keys: " + strings.Join(config.ValidKeys(), ", ")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

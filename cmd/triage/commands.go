package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/triage/internal/config"
)

// --- categorize ---

var categorizeCmd = &cobra.Command{
	Use:   "categorize <text>",
	Short: "Categorize a capture and print the suggestion",
	Long: `Categorize a free-text capture into the taxonomy.

Examples:
  triage categorize "Schedule a workout tomorrow morning" --type task
  triage categorize "Idea: weekly meal prep routine" --type idea
  triage categorize --json "Call the accountant about Q3 taxes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		kind, _ := cmd.Flags().GetString("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"text": text}
		if kind != "" {
			body["content_type"] = kind
		}

		resp, err := client.post(cmd.Context(), "/categorize", body)
		if err != nil {
			return err
		}

		var result struct {
			ID           string  `json:"id"`
			Pillar       string  `json:"pillar"`
			Area         string  `json:"area"`
			Project      string  `json:"project"`
			Confidence   float64 `json:"confidence"`
			Reasoning    string  `json:"reasoning"`
			Alternatives []struct {
				Pillar  string  `json:"pillar"`
				Area    string  `json:"area"`
				Project string  `json:"project"`
				Score   float64 `json:"score"`
			} `json:"alternatives"`
			Metadata struct {
				Sentiment     string   `json:"sentiment"`
				Urgency       string   `json:"urgency"`
				Complexity    string   `json:"complexity"`
				Keywords      []string `json:"keywords"`
				SuggestedTags []string `json:"suggested_tags"`
			} `json:"metadata"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Printf("%s %s\n", colorize(colorBold, "Category:"), formatCategory(result.Pillar, result.Area, result.Project))
		fmt.Printf("%s %.0f%%\n", colorize(colorBold, "Confidence:"), result.Confidence*100)
		if result.Reasoning != "" {
			fmt.Printf("%s %s\n", colorize(colorBold, "Reasoning:"), result.Reasoning)
		}
		for i, alt := range result.Alternatives {
			fmt.Printf("  %d. %s (%.0f%%)\n", i+1, formatCategory(alt.Pillar, alt.Area, alt.Project), alt.Score*100)
		}
		if len(result.Metadata.Keywords) > 0 {
			fmt.Printf("%s %s\n", colorize(colorBold, "Keywords:"), strings.Join(result.Metadata.Keywords, ", "))
		}
		fmt.Printf("%s %s urgency, %s sentiment, %s\n",
			colorize(colorBold, "Signals:"),
			result.Metadata.Urgency, result.Metadata.Sentiment, result.Metadata.Complexity)
		return nil
	},
}

func formatCategory(pillar, area, project string) string {
	parts := []string{pillar}
	if area != "" {
		parts = append(parts, area)
	}
	if project != "" {
		parts = append(parts, project)
	}
	return strings.Join(parts, " > ")
}

func init() {
	categorizeCmd.Flags().String("type", "note", "content type: task, note, idea, or goal")
	categorizeCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <text>",
	Short: "Record a correction or confirmation for a capture",
	Long: `Tell the engine which category a capture really belongs to.

Examples:
  triage feedback "Review quarterly budget" --pillar Finances --area Budgeting
  triage feedback "Morning run done" --pillar "Health & Fitness" --correct`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		pillar, _ := cmd.Flags().GetString("pillar")
		area, _ := cmd.Flags().GetString("area")
		project, _ := cmd.Flags().GetString("project")
		correct, _ := cmd.Flags().GetBool("correct")
		sugPillar, _ := cmd.Flags().GetString("suggested-pillar")
		sugArea, _ := cmd.Flags().GetString("suggested-area")
		sugProject, _ := cmd.Flags().GetString("suggested-project")

		if pillar == "" {
			return fmt.Errorf("--pillar is required")
		}

		body := map[string]any{
			"text": text,
			"accepted": map[string]string{
				"pillar":  pillar,
				"area":    area,
				"project": project,
			},
			"was_correct": correct,
		}
		if sugPillar != "" {
			body["suggested"] = map[string]string{
				"pillar":  sugPillar,
				"area":    sugArea,
				"project": sugProject,
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/feedback", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Feedback recorded for %s", formatCategory(pillar, area, project))
		return nil
	},
}

func init() {
	feedbackCmd.Flags().String("pillar", "", "pillar the capture belongs to (required)")
	feedbackCmd.Flags().String("area", "", "area the capture belongs to")
	feedbackCmd.Flags().String("project", "", "project the capture belongs to")
	feedbackCmd.Flags().Bool("correct", false, "the original suggestion was correct")
	feedbackCmd.Flags().String("suggested-pillar", "", "pillar the engine originally suggested")
	feedbackCmd.Flags().String("suggested-area", "", "area the engine originally suggested")
	feedbackCmd.Flags().String("suggested-project", "", "project the engine originally suggested")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}

		var stats struct {
			TotalItems int64   `json:"total_items"`
			Accuracy   float64 `json:"accuracy"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Feedback items", "%d", stats.TotalItems)
		printStatus("Accuracy", "%.1f%%", stats.Accuracy*100)
		return nil
	},
}

// --- captures ---

var capturesCmd = &cobra.Command{
	Use:   "captures",
	Short: "List recent captures",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/captures?limit=%d", limit))
		if err != nil {
			return err
		}

		var out struct {
			Captures []struct {
				Text       string  `json:"text"`
				Pillar     string  `json:"pillar"`
				Area       string  `json:"area"`
				Project    string  `json:"project"`
				Confidence float64 `json:"confidence"`
				CreatedAt  string  `json:"created_at"`
			} `json:"captures"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Captures) == 0 {
			fmt.Println("No captures found.")
			return nil
		}

		for _, c := range out.Captures {
			text := c.Text
			if len(text) > 60 {
				text = text[:60] + "..."
			}
			fmt.Printf("%s  %s (%.0f%%)\n  %s\n",
				c.CreatedAt,
				colorize(colorBold, formatCategory(c.Pillar, c.Area, c.Project)),
				c.Confidence*100,
				text)
		}
		return nil
	},
}

func init() {
	capturesCmd.Flags().Int("limit", 20, "maximum number of captures")
}

// --- taxonomy ---

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Show or sync the taxonomy",
}

var taxonomyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current taxonomy",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/taxonomy")
		if err != nil {
			return err
		}

		var tax struct {
			Pillars []struct {
				Name  string `json:"name"`
				Areas []struct {
					Name     string `json:"name"`
					Projects []struct {
						Name   string `json:"name"`
						Active bool   `json:"active"`
					} `json:"projects"`
				} `json:"areas"`
			} `json:"pillars"`
		}
		if err := decodeJSON(resp, &tax); err != nil {
			return err
		}

		if len(tax.Pillars) == 0 {
			fmt.Println("No taxonomy synced yet. Run: triage taxonomy sync <file.json>")
			return nil
		}

		for _, p := range tax.Pillars {
			fmt.Println(colorize(colorBold, p.Name))
			for _, a := range p.Areas {
				fmt.Printf("  %s\n", a.Name)
				for _, pr := range a.Projects {
					marker := " "
					if pr.Active {
						marker = colorize(colorGreen, "*")
					}
					fmt.Printf("    %s %s\n", marker, pr.Name)
				}
			}
		}
		return nil
	},
}

var taxonomySyncCmd = &cobra.Command{
	Use:   "sync <file.json>",
	Short: "Replace the taxonomy from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading taxonomy file: %w", err)
		}

		var body map[string]any
		if err := json.Unmarshal(data, &body); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/taxonomy", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Taxonomy synced from %s", args[0])
		return nil
	},
}

func init() {
	taxonomyCmd.AddCommand(taxonomyShowCmd)
	taxonomyCmd.AddCommand(taxonomySyncCmd)
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-import captures from a text, HTML, or PDF file",
	Long: `Queue a file for background import. Each non-empty line becomes a
capture and is categorized by the engine.

Examples:
  triage import ./inbox.txt
  triage import ./reading-list.html --type idea
  triage import ./meeting-notes.pdf --type task`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Queueing %s", path)

		body := map[string]any{"path": path}
		if kind != "" {
			body["content_type"] = kind
		}

		resp, err := client.post(cmd.Context(), "/import", body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued import %s", result["id"])
		return nil
	},
}

func init() {
	importCmd.Flags().String("type", "note", "content type for imported captures")
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
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
	Short: "Remove a configuration value so the default applies",
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
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

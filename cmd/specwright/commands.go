package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/specwright/internal/config"
)

// --- create ---

var createCmd = &cobra.Command{
	Use:   "create <target-url>",
	Short: "Create a test generation job for a target URL",
	Long: `Create a test generation job for a target URL.

Examples:
  specwright create https://demo.example.test
  specwright create https://demo.example.test --scope sandbox --profile login`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		profile, _ := cmd.Flags().GetString("profile")
		owner, _ := cmd.Flags().GetString("owner")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]string{"target_url": args[0]}
		if scope != "" {
			req["scope"] = scope
		}
		if profile != "" {
			req["test_profile"] = profile
		}
		if owner != "" {
			req["owner_id"] = owner
		}

		resp, err := client.post(cmd.Context(), "/jobs", req)
		if err != nil {
			return err
		}

		var job struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			TargetURL string `json:"target_url"`
		}
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		if job.Status == "rejected" {
			printWarning("Job %s rejected by preflight (robots.txt disallows the target)", job.ID)
			return nil
		}
		printSuccess("Created job %s (%s)", job.ID, job.Status)
		return nil
	},
}

func init() {
	createCmd.Flags().String("scope", "", "execution scope: read-only or sandbox")
	createCmd.Flags().String("profile", "", "test profile name")
	createCmd.Flags().String("owner", "", "owner identifier recorded in the consent log")
}

// --- job ---

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/jobs/"+args[0])
		if err != nil {
			return err
		}

		var job any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// --- timeline ---

var timelineCmd = &cobra.Command{
	Use:   "timeline <job-id>",
	Short: "Show a job's phase timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/jobs/"+args[0]+"/timeline")
		if err != nil {
			return err
		}

		var entries []struct {
			Phase     string         `json:"phase"`
			Status    string         `json:"status"`
			Timestamp string         `json:"timestamp"`
			Details   map[string]any `json:"details"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No timeline entries.")
			return nil
		}

		for _, e := range entries {
			status := e.Status
			switch status {
			case "completed":
				status = colorize(colorGreen, status)
			case "failed":
				status = colorize(colorRed, status)
			}
			fmt.Printf("%s  %-12s %s\n", e.Timestamp, colorize(colorBold, e.Phase), status)
			if msg, ok := e.Details["error_message"].(string); ok {
				fmt.Printf("    %s\n", colorize(colorRed, msg))
			}
		}
		return nil
	},
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Show the latest run report for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/jobs/"+args[0]+"/report")
		if err != nil {
			return err
		}

		var report any
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run <test-id>",
	Short: "Schedule an isolated execution of a generated test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/tests/"+args[0]+"/run", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Scheduled run %s", result["run_id"])
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show specwright system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		if resp, err := client.Get(serverURL + "/health"); err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		if resp, err := client.Get(cfg.Browser.BaseURL + "/health"); err != nil {
			printStatus("Browser daemon", "not running")
		} else {
			resp.Body.Close()
			printStatus("Browser daemon", "running at %s", cfg.Browser.BaseURL)
		}

		if resp, err := client.Get(cfg.Runner.BaseURL + "/health"); err != nil {
			printStatus("Step runner", "not running")
		} else {
			resp.Body.Close()
			printStatus("Step runner", "running at %s", cfg.Runner.BaseURL)
		}

		printStatus("Generation mode", "%s", cfg.Generation.Mode)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

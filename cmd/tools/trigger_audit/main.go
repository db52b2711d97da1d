package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Starts a bias audit on a running instance through the admin API and waits
// for the job to finish. Unlike cmd/tools/bias_audit this needs no database
// credentials, only the admin secret of the target deployment.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the running server")
	seed := flag.Int64("seed", 1, "generator seed")
	profiles := flag.Int("profiles", 120, "number of synthetic profiles")
	wait := flag.Duration("wait", 2*time.Minute, "how long to wait for the job")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if secret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	startURL := fmt.Sprintf("%s/api/v1/admin/bias-audit?seed=%d&profiles=%d",
		strings.TrimRight(*addr, "/"), *seed, *profiles)

	req, err := http.NewRequest(http.MethodPost, startURL, nil)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-Admin-Secret", secret)

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		fmt.Printf("Server refused the job: %s\n%s\n", resp.Status, body)
		os.Exit(1)
	}

	var started struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &started); err != nil || started.JobID == "" {
		fmt.Printf("Unexpected response: %s\n", body)
		os.Exit(1)
	}
	fmt.Printf("Audit job %s started (seed=%d, profiles=%d)\n", started.JobID, *seed, *profiles)

	statusURL := fmt.Sprintf("%s/api/v1/admin/job/%s", strings.TrimRight(*addr, "/"), started.JobID)
	deadline := time.Now().Add(*wait)

	for {
		if time.Now().After(deadline) {
			fmt.Println("Timed out waiting for the job; it keeps running on the server.")
			os.Exit(1)
		}
		time.Sleep(2 * time.Second)

		req, err := http.NewRequest(http.MethodGet, statusURL, nil)
		if err != nil {
			fmt.Printf("Error creating request: %v\n", err)
			os.Exit(1)
		}
		req.Header.Set("X-Admin-Secret", secret)

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("Error polling job: %v\n", err)
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
			Result struct {
				OverallRate float64 `json:"overall_rate"`
				Findings    []struct {
					Severity  string  `json:"severity"`
					Dimension string  `json:"dimension"`
					Value     string  `json:"value"`
					Deviation float64 `json:"deviation"`
				} `json:"findings"`
			} `json:"result"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			fmt.Printf("Unexpected job status: %s\n", body)
			continue
		}

		switch status.Status {
		case "completed":
			fmt.Printf("Completed: overall match rate %.1f%%, %d findings\n",
				status.Result.OverallRate*100, len(status.Result.Findings))
			exit := 0
			for _, f := range status.Result.Findings {
				fmt.Printf("  [%s] %s=%s deviates %+.1f%%\n", f.Severity, f.Dimension, f.Value, f.Deviation*100)
				if f.Severity == "high" {
					exit = 2
				}
			}
			os.Exit(exit)
		case "failed":
			fmt.Printf("Job failed: %s\n", status.Error)
			os.Exit(1)
		default:
			fmt.Printf("  still %s...\n", status.Status)
		}
	}
}

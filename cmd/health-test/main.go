package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Services  struct {
		Database struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		} `json:"database"`
		Extraction struct {
			Status string `json:"status"`
		} `json:"extraction"`
	} `json:"services"`
}

// checkHealth fetches and evaluates the validator's health endpoint. The
// database must be reachable; an unconfigured extraction service is reported
// by the caller but does not fail the probe, matching the server's behavior
// of accepting traffic without DOX credentials.
func checkHealth(client *http.Client, url string) (*HealthResponse, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to health endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("parsing JSON response: %w", err)
	}

	if health.Status != "ok" {
		return &health, fmt.Errorf("health status is not 'ok': %s", health.Status)
	}
	if health.Services.Database.Status != "ok" {
		if health.Services.Database.Error != "" {
			return &health, fmt.Errorf("database status is %q: %s",
				health.Services.Database.Status, health.Services.Database.Error)
		}
		return &health, fmt.Errorf("database status is %q", health.Services.Database.Status)
	}

	return &health, nil
}

func main() {
	url := "http://localhost:8080/health"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	fmt.Printf("🔍 Testing health endpoint: %s\n", url)

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	health, err := checkHealth(client, url)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Health check passed!\n")
	fmt.Printf("   Service: %s\n", health.Service)
	fmt.Printf("   Status: %s\n", health.Status)
	fmt.Printf("   Version: %s\n", health.Version)
	fmt.Printf("   Database: %s\n", health.Services.Database.Status)
	fmt.Printf("   Extraction: %s\n", health.Services.Extraction.Status)
	fmt.Printf("   Timestamp: %s\n", health.Timestamp)

	if health.Services.Extraction.Status != "ok" {
		fmt.Printf("⚠️  Extraction service is %s; document uploads will be refused\n",
			health.Services.Extraction.Status)
	}
}

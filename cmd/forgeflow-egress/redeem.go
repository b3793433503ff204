package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/forgeflow/forgeflow/internal/api/http/dto"
)

// runRedeem exchanges a one-time provisioning ticket for an API token and
// writes it where the worker expects its bearer credential. The ticket is
// spent whether or not the write succeeds, so failures here need a fresh
// ticket.
func runRedeem(args []string) error {
	fs := flag.NewFlagSet("redeem", flag.ExitOnError)
	server := fs.String("server", "", "Server URL (e.g., http://server:8080)")
	ticket := fs.String("ticket", "", "One-time provisioning ticket")
	outDir := fs.String("out-dir", ".", "Directory to save the API token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *server == "" {
		return fmt.Errorf("--server is required")
	}
	if *ticket == "" {
		return fmt.Errorf("--ticket is required")
	}

	reqBody, err := json.Marshal(dto.RedeemTicketRequest{Token: *ticket})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := *server + "/api/v1/tickets/redeem"
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("redemption rejected (%d): %s", resp.StatusCode, body)
	}

	var redeemed dto.RedeemTicketResponse
	if err := json.Unmarshal(body, &redeemed); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tokenPath := filepath.Join(*outDir, "api_token")
	if err := os.WriteFile(tokenPath, []byte(redeemed.AccessToken), 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	fmt.Printf("API token saved to %s\n", tokenPath)
	return nil
}

// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
)

func runSessionsList(cmd *cobra.Command, args []string) {
	resp, err := http.Get(serverURL + "/v1/sessions")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var payload struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(payload.Sessions) == 0 {
		fmt.Println("No sessions.")
		return
	}
	for _, id := range payload.Sessions {
		fmt.Println(id)
	}
}

func runSessionsHistory(cmd *cobra.Command, args []string) {
	resp, err := http.Get(serverURL + "/v1/sessions/" + args[0] + "/history")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Fprintf(os.Stderr, "Session %s not found\n", args[0])
		os.Exit(1)
	}

	var history datatypes.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, msg := range history.Messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
}

func runSessionsDelete(cmd *cobra.Command, args []string) {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/v1/sessions/"+args[0], nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Fprintf(os.Stderr, "Session %s not found\n", args[0])
		os.Exit(1)
	}
	fmt.Printf("Deleted session %s\n", args[0])
}

func runToolsList(cmd *cobra.Command, args []string) {
	resp, err := http.Get(serverURL + "/v1/tools")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var payload struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, tool := range payload.Tools {
		fmt.Printf("%-14s %s\n", tool.Name, tool.Description)
	}
}

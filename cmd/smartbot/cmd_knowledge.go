// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
)

// runKnowledgeUpload uploads each named file to the orchestrator. Failures
// are reported per file; the command keeps going so one duplicate does not
// abort a batch.
func runKnowledgeUpload(cmd *cobra.Command, args []string) {
	failed := 0
	for _, path := range args {
		if err := uploadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func uploadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	resp, err := http.Post(serverURL+"/v1/knowledge/upload", form.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("contacting orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var result datatypes.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	fmt.Printf("%s: %d chunks indexed\n", result.Filename, result.Chunks)
	return nil
}

// runKnowledgeStats prints the index snapshot.
func runKnowledgeStats(cmd *cobra.Command, args []string) {
	resp, err := http.Get(serverURL + "/v1/knowledge/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var stats knowledge.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Documents: %d\nChunks:    %d\n", stats.DocumentCount, stats.TotalChunks)
	for _, name := range stats.Filenames {
		fmt.Printf("  - %s\n", name)
	}
}

// readErrorBody extracts the "error" field from a JSON error response,
// falling back to the raw body.
func readErrorBody(r io.Reader) string {
	payload, _ := io.ReadAll(io.LimitReader(r, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(payload)
}

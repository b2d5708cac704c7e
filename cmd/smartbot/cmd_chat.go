// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/smartbot-labs/smartbot/services/orchestrator/datatypes"
)

// runAskCommand sends one question and streams the answer to stdout.
func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	sid := sessionID
	if sid == "" {
		sid = uuid.New().String()
	}

	color := isatty.IsTerminal(os.Stdout.Fd())
	proc := NewStreamProcessor(os.Stdout, color)
	result, err := streamTurn(serverURL, datatypes.ChatStreamRequest{
		SessionID:    sid,
		Message:      question,
		UseKnowledge: useKnowledge,
	}, proc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if color {
		fmt.Fprintf(os.Stderr, "\033[2m(session %s)\033[0m\n", result.SessionID)
	}
}

// runChatCommand starts an interactive multi-turn chat loop. Each line of
// input is one turn against the same session; an empty line or EOF exits.
func runChatCommand(cmd *cobra.Command, args []string) {
	sid := sessionID
	if sid == "" {
		sid = uuid.New().String()
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd())
	color := isatty.IsTerminal(os.Stdout.Fd())
	if interactive {
		fmt.Printf("SmartBot chat (session %s). Empty line or Ctrl-D to exit.\n", sid)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		if interactive {
			fmt.Print("you> ")
		}
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil || interactive {
				return
			}
			continue
		}

		proc := NewStreamProcessor(os.Stdout, color)
		if _, err := streamTurn(serverURL, datatypes.ChatStreamRequest{
			SessionID:    sid,
			Message:      line,
			UseKnowledge: useKnowledge,
		}, proc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if err != nil {
			return
		}
	}
}

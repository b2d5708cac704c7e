// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL    string
	sessionID    string
	useKnowledge bool

	rootCmd = &cobra.Command{
		Use:   "smartbot",
		Short: "A cli to talk to a SmartBot orchestrator service",
		Long: `SmartBot is a conversational backend with knowledge retrieval and
tool use. This CLI streams chat turns from a running orchestrator and
manages its sessions and knowledge base.`,
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question and print the streamed answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	// --- Knowledge ---
	knowledgeCmd = &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the knowledge base",
	}
	knowledgeUploadCmd = &cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload .txt or .md documents into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		Run:   runKnowledgeUpload, // Defined in cmd_knowledge.go
	}
	knowledgeStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Run:   runKnowledgeStats, // Defined in cmd_knowledge.go
	}

	// --- Sessions ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Manage conversation sessions",
	}
	sessionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List known session identifiers",
		Run:   runSessionsList, // Defined in cmd_sessions.go
	}
	sessionsHistoryCmd = &cobra.Command{
		Use:   "history [session-id]",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsHistory, // Defined in cmd_sessions.go
	}
	sessionsDeleteCmd = &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a session and its transcript",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsDelete, // Defined in cmd_sessions.go
	}

	// --- Tools ---
	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the model",
		Run:   runToolsList, // Defined in cmd_sessions.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:12210", "Base URL of the orchestrator service")

	chatCmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session")
	chatCmd.Flags().BoolVar(&useKnowledge, "knowledge", false, "Enable knowledge retrieval")
	askCmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session")
	askCmd.Flags().BoolVar(&useKnowledge, "knowledge", false, "Enable knowledge retrieval")

	knowledgeCmd.AddCommand(knowledgeUploadCmd, knowledgeStatsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsHistoryCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(chatCmd, askCmd, knowledgeCmd, sessionsCmd, toolsCmd)
}

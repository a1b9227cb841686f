package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nexusd",
		Short:        "Local multi-agent orchestration daemon",
		Version:      versionString(),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildSessionCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: scheduler, dispatcher, MCP supervisors, and observer gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "nexusd.yaml", "Path to YAML configuration file")
	return cmd
}

func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and create sessions without starting the scheduler",
	}
	cmd.AddCommand(buildSessionCreateCmd(), buildSessionListCmd())
	return cmd
}

func buildSessionCreateCmd() *cobra.Command {
	var (
		configPath string
		template   string
		prompt     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session from a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := runSessionCreate(configPath, template, prompt)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "nexusd.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&template, "template", "t", "", "Template name (required)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Initial user prompt (omit to leave the session in 'created')")
	cmd.MarkFlagRequired("template")
	return cmd
}

func buildSessionListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List session summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionList(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "nexusd.yaml", "Path to YAML configuration file")
	return cmd
}

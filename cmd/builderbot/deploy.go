package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/isdmx/builderbot/deploy"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <description>",
	Short: "Generate a project, publish it to GitHub and add it to the infra stack",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var publisher *deploy.Publisher
		app := fx.New(
			coreModule(loadConfig(cmd)),
			fx.Populate(&publisher),
			fx.NopLogger,
		)
		if err := app.Err(); err != nil {
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		result, err := publisher.Deploy(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		return printResult(cmd.OutOrStdout(), result, asJSON)
	},
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().Duration("timeout", 5*time.Minute, "Overall time limit for generation and publishing")
	deployCmd.Flags().Bool("json", false, "Print the result as JSON")
}

func printResult(w io.Writer, result *deploy.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	verb := "updated"
	if result.Created {
		verb = "created"
	}
	fmt.Fprintf(w, "Repository %s: %s\n", verb, result.RepoURL)
	fmt.Fprintf(w, "Files: %s\n", strings.Join(result.Files, ", "))
	switch result.Infra {
	case deploy.OutcomeAdded:
		fmt.Fprintln(w, "Infra: service added")
	case deploy.OutcomeExists:
		fmt.Fprintln(w, "Infra: service already present")
	default:
		fmt.Fprintf(w, "Infra: failed: %s\n", result.InfraError)
	}
	if result.PublicURL != "" {
		fmt.Fprintf(w, "Address: %s\n", result.PublicURL)
	}
	return nil
}

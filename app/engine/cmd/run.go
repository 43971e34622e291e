package main

import (
	"context"
	"fmt"
	"strings"

	"conductor/app/objects"
	"conductor/app/workflow"
	"conductor/pkg/contextx"

	"github.com/spf13/cobra"
)

var (
	templateFile string
	runAccount   string
	runUser      string
	runKickoff   []string
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Instantiate a workflow template and start it",
	Example: `  conductor run -f onboarding.yaml --account acme --user alice --kickoff client=ACME`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := objects.LoadTemplateFile(templateFile)
		if err != nil {
			return err
		}
		kickoff, err := parseKickoff(runKickoff)
		if err != nil {
			return err
		}
		if err := initDB(); err != nil {
			return err
		}
		ctx := contextx.NewUserContext(context.Background(), runAccount, runUser, false)
		wf, err := workflow.NewEngine().RunWorkflow(ctx, spec, kickoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", wf.ID, wf.Status)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&templateFile, "file", "f", "", "YAML template file")
	runCmd.Flags().StringVar(&runAccount, "account", "default", "account the workflow belongs to")
	runCmd.Flags().StringVar(&runUser, "user", "", "user starting the workflow")
	runCmd.Flags().StringArrayVar(&runKickoff, "kickoff", nil, "kickoff field as name=value, repeatable")
	runCmd.MarkFlagRequired("file")
}

func parseKickoff(pairs []string) (map[string]string, error) {
	kickoff := map[string]string{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("kickoff %q is not name=value", pair)
		}
		kickoff[name] = value
	}
	return kickoff, nil
}

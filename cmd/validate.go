package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eugenetaranov/router-reset-dns/internal/observability"
	"github.com/eugenetaranov/router-reset-dns/internal/routerconfig"
)

func newValidateCmd() *cobra.Command {
	var modelsPath, model string

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the model document for structural problems",
		Long: `Parses the model document and reports every problem that would make a router
fail at run time: missing locators, models claimed by several groups, gaps in the
dns_k fields and so on. With --model, also shows which group the model resolves to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelsPath == "" {
				modelsPath = getConfigFileFromContext(cmd.Context())
			}
			doc, err := loadModelDocument(observability.GetLogger(), modelsPath)
			if err != nil {
				return err
			}
			return runValidate(cmd.OutOrStdout(), doc, model)
		},
	}

	validateCmd.Flags().StringVar(&modelsPath, "models", "", "Model document (default: the config file)")
	validateCmd.Flags().StringVar(&model, "model", "", "Also resolve this model name to its group")
	return validateCmd
}

func runValidate(out io.Writer, doc *routerconfig.Document, model string) error {
	names := doc.GroupNames()
	fmt.Fprintf(out, "%d groups: %s\n", len(names), strings.Join(names, ", "))

	issues := doc.Check()
	for _, issue := range issues {
		fmt.Fprintln(out, "  "+issue.String())
	}

	var resolveErr error
	if model != "" {
		key, g, err := doc.ResolveGroup(model)
		if err != nil {
			resolveErr = fmt.Errorf("model %s: %w", model, err)
		} else {
			fmt.Fprintf(out, "model %s -> group %s (%s)\n", model, key, describeGroup(g))
		}
	}

	if issues.HasErrors() {
		return errors.Join(fmt.Errorf("model document has %d error(s)", issues.Count(routerconfig.SeverityError)), resolveErr)
	}
	if resolveErr != nil {
		return resolveErr
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func describeGroup(g *routerconfig.Group) string {
	var parts []string
	if g.Login.Basic {
		parts = append(parts, "basic auth")
	} else {
		parts = append(parts, "form login")
	}
	if g.DNS != nil {
		parts = append(parts, fmt.Sprintf("dns: %d fields", len(g.DNS.Servers)))
	}
	if g.PasswordReset != nil {
		parts = append(parts, "password reset")
	}
	return strings.Join(parts, ", ")
}

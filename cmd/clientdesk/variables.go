package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/clientdesk/internal/app"
	"github.com/foxzi/clientdesk/internal/content"
	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
	"github.com/foxzi/clientdesk/internal/variables"
)

var variablesCmd = &cobra.Command{
	Use:   "variables",
	Short: "List the template variables",
	RunE:  runVariables,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a template file with variables substituted",
	Long: `Render a template file the way it would be sent. With --user and --client
the variables are resolved from stored data, otherwise defaults are used.`,
	RunE: runRender,
}

var (
	variablesJSON bool

	renderFile        string
	renderSubject     string
	renderUser        string
	renderClient      string
	renderProjectType string
	renderVars        map[string]string
	renderHTML        bool
)

func init() {
	variablesCmd.Flags().BoolVar(&variablesJSON, "json", false, "Output as JSON")

	renderCmd.Flags().StringVarP(&renderFile, "file", "f", "", "Template file (required)")
	renderCmd.Flags().StringVar(&renderSubject, "subject", "", "Subject line to render")
	renderCmd.Flags().StringVar(&renderUser, "user", "", "Email of the sending user")
	renderCmd.Flags().StringVar(&renderClient, "client", "", "Client id (requires --user)")
	renderCmd.Flags().StringVar(&renderProjectType, "project-type", "", "Project type override")
	renderCmd.Flags().StringToStringVar(&renderVars, "var", nil, "Custom variable key=value (repeatable)")
	renderCmd.Flags().BoolVar(&renderHTML, "html", false, "Print the HTML body that would be sent")
	renderCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(variablesCmd, renderCmd)
}

func runVariables(cmd *cobra.Command, args []string) error {
	catalog := variables.Catalog()

	if variablesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIABLE\tGROUP\tLABEL\tEXAMPLE")
	for _, d := range catalog {
		fmt.Fprintf(w, "{{%s}}\t%s\t%s\t%s\n", d.Key, d.Group, d.Label, d.Example)
	}
	return w.Flush()
}

func runRender(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(renderFile)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	vctx := variables.Context{
		ProjectType:     renderProjectType,
		CustomVariables: renderVars,
	}

	if renderUser != "" {
		user, client, closeFn, err := lookupRenderContext(cmd, renderUser, renderClient)
		if err != nil {
			return err
		}
		defer closeFn()
		vctx.User = user
		vctx.Client = client
	} else if renderClient != "" {
		return fmt.Errorf("--client requires --user")
	}

	engine := variables.New()
	vars := engine.AvailableVariables(vctx)
	body := engine.Substitute(string(data), vars)
	out := cmd.OutOrStdout()

	if renderSubject != "" {
		fmt.Fprintf(out, "Subject: %s\n\n", engine.Substitute(renderSubject, vars))
	}

	if renderHTML {
		htmlBody, _, err := content.Render(string(data), engine.Fill(vars))
		if err != nil {
			return fmt.Errorf("failed to render body: %w", err)
		}
		body = htmlBody
	}
	fmt.Fprintln(out, strings.TrimRight(body, "\n"))

	check := engine.ValidateTemplate(renderSubject+"\n"+string(data), vctx)
	if !check.IsValid {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nMissing variables: %s\n", strings.Join(check.MissingVariables, ", "))
	}
	return nil
}

func lookupRenderContext(cmd *cobra.Command, email, clientID string) (*models.User, *models.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	st, _, err := app.OpenStore(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() { st.Close() }

	user, err := repository.NewUsers(st).GetByEmail(cmd.Context(), email)
	if err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("user %s not found: %w", email, err)
	}

	var client *models.Client
	if clientID != "" {
		client, err = repository.NewClients(st).Get(cmd.Context(), user.ID, clientID)
		if err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("client %s not found: %w", clientID, err)
		}
	}
	return user, client, closeFn, nil
}

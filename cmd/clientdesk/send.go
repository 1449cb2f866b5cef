package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/clientdesk/internal/app"
	"github.com/foxzi/clientdesk/internal/dispatch"
	"github.com/foxzi/clientdesk/internal/models"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a personalised email to a set of clients",
	Long: `Send a template or a content file to clients of a user. Recipients are
the clients given with --client, or every client matching the filters.
Emails go out one by one with the configured delay; Ctrl-C stops the run
and leaves the remaining recipients pending.`,
	RunE: runSend,
}

var (
	sendUser        string
	sendTemplate    string
	sendFile        string
	sendSubject     string
	sendClients     []string
	sendStatus      string
	sendStage       string
	sendProjectType string
	sendVars        map[string]string
	sendDelay       time.Duration
)

func init() {
	sendCmd.Flags().StringVar(&sendUser, "user", "", "Email of the sending user (required)")
	sendCmd.Flags().StringVar(&sendTemplate, "template", "", "Stored template id")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "Content file, overrides the template body")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "Subject, overrides the template subject")
	sendCmd.Flags().StringSliceVar(&sendClients, "client", nil, "Client ids (repeatable)")
	sendCmd.Flags().StringVar(&sendStatus, "status", "", "Only clients with this status")
	sendCmd.Flags().StringVar(&sendStage, "stage", "", "Only clients in this onboarding stage")
	sendCmd.Flags().StringVar(&sendProjectType, "project-type", "", "Only clients with this project type")
	sendCmd.Flags().StringToStringVar(&sendVars, "var", nil, "Custom variable key=value (repeatable)")
	sendCmd.Flags().DurationVar(&sendDelay, "delay", 0, "Pause between recipients (default from config)")
	sendCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("delay") {
		cfg.Dispatch.Delay = sendDelay
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	user, err := application.Users().GetByEmail(ctx, sendUser)
	if err != nil {
		return fmt.Errorf("user %s not found: %w", sendUser, err)
	}

	subject, body := sendSubject, ""
	if sendTemplate != "" {
		t, err := application.Templates().Get(ctx, user.ID, sendTemplate)
		if err != nil {
			return fmt.Errorf("template %s not found: %w", sendTemplate, err)
		}
		if subject == "" {
			subject = t.Subject
		}
		body = t.Body
	}
	if sendFile != "" {
		data, err := os.ReadFile(sendFile)
		if err != nil {
			return fmt.Errorf("failed to read content file: %w", err)
		}
		body = string(data)
	}

	var recipients []models.Client
	if len(sendClients) > 0 {
		recipients, err = application.Clients().GetMany(ctx, user.ID, sendClients)
	} else {
		recipients, err = application.Clients().List(ctx, user.ID, models.ClientFilter{
			Status:          sendStatus,
			OnboardingStage: sendStage,
			ProjectType:     sendProjectType,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to load recipients: %w", err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sending to %d recipient(s)...\n", len(recipients))

	run, err := application.Dispatcher().Dispatch(ctx, dispatch.Request{
		Recipients:      recipients,
		Sender:          user,
		Subject:         subject,
		Content:         body,
		CustomVariables: sendVars,
	})
	if err != nil {
		return err
	}

	return printRun(cmd, *run)
}

func printRun(cmd *cobra.Command, run dispatch.Run) error {
	out := cmd.OutOrStdout()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECIPIENT\tSTATUS\tERROR")
	for _, st := range run.Statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\n", st.Email, st.State, st.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	summary := dispatch.Summarize(run)
	fmt.Fprintf(out, "\nRun %s: %s (%s)\n", run.ID, summary, summary.Outcome)
	return nil
}

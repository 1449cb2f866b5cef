package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/dkim"
	"github.com/foxzi/clientdesk/internal/dnscheck"
)

var (
	dnsSelector string
	dnsJSON     bool

	// Replaced in tests
	dnsResolver dnscheck.Resolver
)

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "DNS commands",
}

var dnsCheckCmd = &cobra.Command{
	Use:   "check [domain]",
	Short: "Check SPF, DKIM and DMARC records of the sending domain",
	Long: `Check the DNS records receivers use to authenticate mail from the
sending domain. Without an argument the domain of mailer.sender_email is
checked, and with smtp DKIM configured the published key is compared with
the local private key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDNSCheck,
}

func init() {
	dnsCheckCmd.Flags().StringVar(&dnsSelector, "selector", "", "DKIM selector (default from config)")
	dnsCheckCmd.Flags().BoolVar(&dnsJSON, "json", false, "Output as JSON")

	dnsCmd.AddCommand(dnsCheckCmd)
	rootCmd.AddCommand(dnsCmd)
}

func runDNSCheck(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	if cfgFile != "" {
		var err error
		if cfg, err = loadConfig(); err != nil {
			return err
		}
	}

	domain := ""
	if len(args) > 0 {
		domain = args[0]
	} else if cfg != nil {
		if _, d, ok := strings.Cut(cfg.Mailer.SenderEmail, "@"); ok {
			domain = d
		}
	}
	if domain == "" {
		return fmt.Errorf("domain is required (argument or -c with mailer.sender_email)")
	}

	opts := dnscheck.Options{Selector: dnsSelector}
	if cfg != nil && cfg.Mailer.SMTP.DKIM.Enabled {
		if opts.Selector == "" {
			opts.Selector = cfg.Mailer.SMTP.DKIM.Selector
		}
		key, err := dkim.LoadPrivateKey(cfg.Mailer.SMTP.DKIM.KeyFile)
		if err != nil {
			return err
		}
		kp := &dkim.KeyPair{PrivateKey: key, Domain: cfg.Mailer.SMTP.DKIM.Domain, Selector: opts.Selector}
		if opts.PublicKey, err = kp.PublicKeyBase64(); err != nil {
			return err
		}
	}

	report, err := dnscheck.New(dnsResolver).Check(cmd.Context(), domain, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dnsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "DNS check for %s\n\n", report.Domain)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tNAME\tSTATUS\tDETAILS")
		for _, r := range report.Results {
			details := r.Message
			if details == "" {
				details = r.Value
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Type, r.Name, r.Status, details)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if !report.OK() {
		return fmt.Errorf("domain %s is missing required records", report.Domain)
	}
	return nil
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/clientdesk/internal/app"
	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
	"github.com/foxzi/clientdesk/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user and print its API key",
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var userRotateKeyCmd = &cobra.Command{
	Use:   "rotate-key [email]",
	Short: "Replace a user's API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRotateKey,
}

var (
	userEmail   string
	userName    string
	userCompany string
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "User name")
	userCreateCmd.Flags().StringVar(&userCompany, "company", "", "Business name used in emails")
	userCreateCmd.MarkFlagRequired("email")
	userCreateCmd.MarkFlagRequired("name")

	userCmd.AddCommand(userCreateCmd, userListCmd, userRotateKeyCmd)
	rootCmd.AddCommand(userCmd)
}

func openUsers() (*repository.Users, store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	st, _, err := app.OpenStore(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewUsers(st), st, nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	users, st, err := openUsers()
	if err != nil {
		return err
	}
	defer st.Close()

	u := &models.User{
		Name:  userName,
		Email: userEmail,
		Brand: models.BrandSettings{CompanyName: userCompany},
	}
	key, err := users.Create(cmd.Context(), u)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User created: %s (%s)\n", u.Email, u.ID)
	fmt.Fprintf(out, "API key: %s\n", key)
	fmt.Fprintf(out, "Store the key now, it cannot be shown again.\n")
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	users, st, err := openUsers()
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := users.List(cmd.Context())
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tKEY PREFIX\tCREATED")
	for _, u := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.APIKeyPrefix, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runUserRotateKey(cmd *cobra.Command, args []string) error {
	users, st, err := openUsers()
	if err != nil {
		return err
	}
	defer st.Close()

	u, err := users.GetByEmail(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("user %s not found: %w", args[0], err)
	}

	key, err := users.RotateKey(cmd.Context(), u.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "New API key for %s: %s\n", u.Email, key)
	return nil
}

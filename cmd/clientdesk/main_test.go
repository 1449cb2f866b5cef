package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/clientdesk/internal/config"
	"github.com/foxzi/clientdesk/internal/models"
	"github.com/foxzi/clientdesk/internal/repository"
	"github.com/foxzi/clientdesk/internal/store/bolt"
	"github.com/foxzi/clientdesk/internal/variables"
)

var apiKeyPattern = regexp.MustCompile(`API key: (\S+)`)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T) (path, dbPath string) {
	t.Helper()

	dir := t.TempDir()
	dbPath = filepath.Join(dir, "clientdesk.db")
	path = filepath.Join(dir, "config.yaml")

	cfg := fmt.Sprintf(`database:
  driver: bolt
  path: %s
mailer:
  provider: sandbox
  sender_email: hello@studio.test
  sender_name: Studio
logging:
  level: error
  format: text
`, dbPath)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path, dbPath
}

func createUser(t *testing.T, cfgPath, email string) string {
	t.Helper()

	out, err := execute(t, "user", "create", "-c", cfgPath, "--email", email, "--name", "Sue Smith", "--company", "Sue Studio")
	require.NoError(t, err)
	m := apiKeyPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

// seedClients writes clients directly to the database while no command holds it open
func seedClients(t *testing.T, dbPath, email string, clients ...*models.Client) {
	t.Helper()

	st, err := bolt.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	user, err := repository.NewUsers(st).GetByEmail(t.Context(), email)
	require.NoError(t, err)

	repo := repository.NewClients(st)
	for _, c := range clients {
		require.NoError(t, repo.Create(t.Context(), user.ID, c))
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "clientdesk version dev")
}

func TestConfigValidate(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := execute(t, "config", "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, dbPath)
	assert.Contains(t, out, "Mail provider: sandbox")
}

func TestConfigValidateErrors(t *testing.T) {
	_, err := execute(t, "config", "validate", "--config=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file is required")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mailer:\n  provider: pigeon\n  sender_email: a@b.test\n"), 0600))

	_, err = execute(t, "config", "validate", "-c", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mailer.provider")
}

func TestMigrateCommand(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := execute(t, "migrate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations completed successfully")
	assert.FileExists(t, dbPath)
}

func TestUserCommands(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	key := createUser(t, cfgPath, "sue@studio.test")
	assert.NotEmpty(t, key)

	out, err := execute(t, "user", "list", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "sue@studio.test")
	assert.Contains(t, out, "Sue Smith")

	out, err = execute(t, "user", "rotate-key", "sue@studio.test", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "New API key for sue@studio.test")
	assert.NotContains(t, out, key)

	_, err = execute(t, "user", "rotate-key", "nobody@studio.test", "-c", cfgPath)
	assert.Error(t, err)
}

func TestVariablesCommand(t *testing.T) {
	out, err := execute(t, "variables")
	require.NoError(t, err)
	assert.Contains(t, out, "{{clientName}}")
	assert.Contains(t, out, "{{currentYear}}")

	out, err = execute(t, "variables", "--json")
	require.NoError(t, err)

	var defs []variables.Definition
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	assert.Len(t, defs, len(variables.Catalog()))
}

func TestRenderCommand(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	createUser(t, cfgPath, "sue@studio.test")

	client := &models.Client{Name: "John Carter", Email: "john@acme.test", Company: "Acme", ProjectType: "Website"}
	seedClients(t, dbPath, "sue@studio.test", client)

	tmpl := filepath.Join(t.TempDir(), "welcome.md")
	require.NoError(t, os.WriteFile(tmpl, []byte("Hi {{clientName}}, welcome to {{businessName}}. Budget: {{budget}}\n"), 0600))

	out, err := execute(t, "render", "-c", cfgPath,
		"-f", tmpl,
		"--subject", "{{projectType}} kickoff",
		"--user", "sue@studio.test",
		"--client", client.ID,
		"--var", "budget=5000",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: Website kickoff")
	assert.Contains(t, out, "Hi John Carter, welcome to Sue Studio. Budget: 5000")
	assert.NotContains(t, out, "Missing variables")
}

func TestRenderRequiresUserForClient(t *testing.T) {
	tmpl := filepath.Join(t.TempDir(), "t.txt")
	require.NoError(t, os.WriteFile(tmpl, []byte("Hi"), 0600))

	_, err := execute(t, "render", "-f", tmpl, "--user=", "--client", "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--client requires --user")
}

func TestSendCommand(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	createUser(t, cfgPath, "sue@studio.test")
	seedClients(t, dbPath, "sue@studio.test",
		&models.Client{Name: "John Carter", Email: "john@acme.test", Status: models.ClientStatusActive},
		&models.Client{Name: "Dana Lee", Email: "dana@globex.test", Status: models.ClientStatusActive},
		&models.Client{Name: "Old Lead", Email: "old@lead.test", Status: models.ClientStatusArchived},
	)

	content := filepath.Join(t.TempDir(), "update.md")
	require.NoError(t, os.WriteFile(content, []byte("Hello {{clientName}}, a quick project update."), 0600))

	out, err := execute(t, "send", "-c", cfgPath,
		"--user", "sue@studio.test",
		"--subject", "Update for {{clientName}}",
		"-f", content,
		"--status", models.ClientStatusActive,
		"--delay", "0s",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Sending to 2 recipient(s)")
	assert.Contains(t, out, "john@acme.test")
	assert.Contains(t, out, "dana@globex.test")
	assert.NotContains(t, out, "old@lead.test")
	assert.Contains(t, out, "2 sent, 0 failed")
	assert.Contains(t, out, "all_sent")
}

func TestDKIMKeygenCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "dkim", "keygen", "--domain", "studio.test", "--selector", "cd", "--bits", "1024", "--out", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "cd._domainkey.studio.test")
	assert.Contains(t, out, "v=DKIM1")
	assert.FileExists(t, filepath.Join(dir, "cd.studio.test.key"))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	cfgFile = cfgPath
	defer func() { cfgFile = "" }()

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.DriverBolt, cfg.Database.Driver)
	assert.Equal(t, config.ProviderSandbox, cfg.Mailer.Provider)
}

type staticResolver map[string][]string

func (r staticResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return r[name], nil
}

func TestDNSCheckCommand(t *testing.T) {
	dnsResolver = staticResolver{
		"studio.test":        {"v=spf1 include:mailgun.org ~all"},
		"_dmarc.studio.test": {"v=DMARC1; p=reject"},
	}
	defer func() { dnsResolver = nil }()

	cfgPath, _ := writeConfig(t)

	// Domain taken from mailer.sender_email
	out, err := execute(t, "dns", "check", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "DNS check for studio.test")
	assert.Contains(t, out, "include:mailgun.org")

	out, err = execute(t, "dns", "check", "other.test", "--config=")
	require.Error(t, err)
	assert.Contains(t, out, "not_found")
}

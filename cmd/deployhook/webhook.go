package main

import (
	"fmt"
	"os"

	"deployhook/internal/githook"

	"github.com/spf13/cobra"
)

var (
	webhookRepo        string
	webhookBaseURL     string
	webhookGitHubToken string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Register the deploy endpoint with a git provider",
}

var webhookGitHubCmd = &cobra.Command{
	Use:   "github",
	Short: "Create a GitHub repository webhook pointing at the deploy endpoint",
	Long: `Create a push webhook on a GitHub repository that targets
<base-url>/<prefix> and signs deliveries with the configured webhook secret.
Nothing is created when a webhook with the same URL already exists.`,
	Example: `  deployhook webhook github --repo acme/site --base-url https://site.example.com`,
	RunE:    runWebhookGitHub,
}

func init() {
	webhookGitHubCmd.Flags().StringVar(&webhookRepo, "repo", "", "GitHub owner/repo")
	webhookGitHubCmd.Flags().StringVar(&webhookBaseURL, "base-url", "", "Public base URL of the application")
	webhookGitHubCmd.Flags().StringVar(&webhookGitHubToken, "github-token", os.Getenv("GITHUB_TOKEN"), "GitHub token with admin:repo_hook scope")
	_ = webhookGitHubCmd.MarkFlagRequired("repo")
	_ = webhookGitHubCmd.MarkFlagRequired("base-url")

	webhookCmd.AddCommand(webhookGitHubCmd)
}

func runWebhookGitHub(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("DEPLOY_WEBHOOK_SECRET must be set so GitHub deliveries can be verified")
	}

	ctx := cmd.Context()
	registrar, err := githook.NewRegistrar(ctx, webhookGitHubToken)
	if err != nil {
		return err
	}

	url := githook.DeployURL(webhookBaseURL, cfg.Prefix)
	outcome, err := registrar.Ensure(ctx, githook.Hook{
		OwnerRepo: webhookRepo,
		URL:       url,
		Secret:    cfg.WebhookSecret,
	})
	if err != nil {
		return err
	}

	switch outcome {
	case githook.OutcomeExists:
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook already exists on GitHub: %s\n", url)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Created GitHub webhook: %s\n", url)
	}
	return nil
}

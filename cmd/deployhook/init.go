package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"deployhook/internal/security"
	"deployhook/pkg/envfile"
	"deployhook/pkg/fileutil"
	"deployhook/pkg/templates"

	"github.com/spf13/cobra"
)

var (
	initToken       string
	initPrefix      string
	initEnable      bool
	initEnvPath     string
	initExamplePath string
	initWriteConfig string
	initAppRoot     string
	initSystemdUnit string
	initSystemdUser string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write deploy settings into .env and .env.example",
	Long: `Write the deploy token, route prefix and enable flag into the application's
.env file and append any missing deploy keys to .env.example.

A strong token is generated when --token is not given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initToken, "token", "", "Deploy token (generated when empty)")
	initCmd.Flags().StringVar(&initPrefix, "prefix", "deploy", "Deploy route prefix")
	initCmd.Flags().BoolVar(&initEnable, "enable", false, "Enable the deploy routes now")
	initCmd.Flags().StringVar(&initEnvPath, "env", ".env", "Path to the application .env file")
	initCmd.Flags().StringVar(&initExamplePath, "example", ".env.example", "Path to the .env.example file")
	initCmd.Flags().StringVar(&initWriteConfig, "write-config", "", "Also write a starter config file to this path")
	initCmd.Flags().StringVar(&initAppRoot, "app-root", ".", "Application root written into the starter config")
	initCmd.Flags().StringVar(&initSystemdUnit, "systemd-unit", "", "Also write a systemd unit for 'deployhook serve' to this path")
	initCmd.Flags().StringVar(&initSystemdUser, "systemd-user", "www-data", "User and group the systemd unit runs as")
}

// initOptions is the input of initEnvironment.
type initOptions struct {
	Token       string
	Prefix      string
	Enable      bool
	EnvPath     string
	ExamplePath string
	ConfigPath  string
	AppRoot     string
	SystemdUnit string
	SystemdUser string
	Binary      string
}

func runInit(cmd *cobra.Command, args []string) error {
	return initEnvironment(cmd.OutOrStdout(), initOptions{
		Token:       initToken,
		Prefix:      initPrefix,
		Enable:      initEnable,
		EnvPath:     initEnvPath,
		ExamplePath: initExamplePath,
		ConfigPath:  initWriteConfig,
		AppRoot:     initAppRoot,
		SystemdUnit: initSystemdUnit,
		SystemdUser: initSystemdUser,
	})
}

func initEnvironment(out io.Writer, opts initOptions) error {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		generated, err := security.GenerateToken()
		if err != nil {
			return err
		}
		token = generated
		fmt.Fprintln(out, "Generated a new deploy token.")
	} else if err := security.ValidateToken(token); err != nil {
		fmt.Fprintf(out, "Warning: %v\n", err)
	}

	prefix := strings.Trim(strings.TrimSpace(opts.Prefix), "/")
	if prefix == "" {
		prefix = "deploy"
	}

	values := []struct{ key, value string }{
		{"DEPLOY_TOKEN", token},
		{"DEPLOY_PREFIX", prefix},
		{"DEPLOY_ENABLED", strconv.FormatBool(opts.Enable)},
	}
	for _, v := range values {
		if err := envfile.Upsert(opts.EnvPath, v.key, v.value, security.PermEnvFile); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Updated %s\n", opts.EnvPath)

	lines, err := templates.EnvExampleLines(prefix)
	if err != nil {
		return err
	}
	added, err := envfile.AppendMissing(opts.ExamplePath, lines, security.PermPublicFile)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		fmt.Fprintf(out, "Added %d keys to %s\n", len(added), opts.ExamplePath)
	}

	if opts.ConfigPath != "" {
		if err := writeStarterConfig(opts.ConfigPath, prefix, opts.AppRoot); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", opts.ConfigPath)
	}

	if opts.SystemdUnit != "" {
		if err := writeSystemdUnit(opts); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", opts.SystemdUnit)
	}

	fmt.Fprintf(out, "Deploy URL path: /%s\n", prefix)
	return nil
}

func writeStarterConfig(path, prefix, appRoot string) error {
	if fileutil.FileExists(path) {
		return fmt.Errorf("%s already exists; not overwriting", path)
	}
	if appRoot == "" {
		appRoot = "."
	}
	content, err := templates.RenderConfig(prefix, appRoot)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), security.PermPublicFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeSystemdUnit(opts initOptions) error {
	if fileutil.FileExists(opts.SystemdUnit) {
		return fmt.Errorf("%s already exists; not overwriting", opts.SystemdUnit)
	}

	workingDir, err := filepath.Abs(filepath.Dir(opts.EnvPath))
	if err != nil {
		return err
	}
	binary := opts.Binary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return fmt.Errorf("failed to locate deployhook binary: %w", err)
		}
	}
	user := opts.SystemdUser
	if user == "" {
		user = "www-data"
	}

	content, err := templates.RenderSystemdService(user, user, workingDir, binary, filepath.Join(workingDir, "deployhook.log"))
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.SystemdUnit, []byte(content), security.PermPublicFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.SystemdUnit, err)
	}
	return nil
}

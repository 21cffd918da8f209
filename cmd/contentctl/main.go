// Package main provides contentctl, the administrative CLI of the content store.
//
// It reads the same environment variables as the server (see config.WithEnv)
// and talks to the blob stores and lock coordinator directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/versioned-content/pkg/contentstore"
	"github.com/tendant/versioned-content/pkg/contentstore/config"
)

var (
	cfg     *config.ServerConfig
	cleanup = func() {}
)

func main() {
	err := rootCmd.Execute()
	cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "contentctl",
	Short: "contentctl administers a versioned content store",
	Long: `contentctl inspects templates and objects, and lists or force-releases
locks left behind by crashed writers.

Configuration comes from the environment, as for the server:
` + config.Usage(),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.AddCommand(locksCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(objectsCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(config.WithEnv(), config.WithEventLogging(false))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	return nil
}

// buildService connects the service; main closes the connections after the command.
func buildService(ctx context.Context) (contentstore.Service, error) {
	svc, done, err := cfg.BuildService(ctx)
	if err != nil {
		return nil, err
	}
	cleanup = done
	return svc, nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

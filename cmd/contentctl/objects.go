package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var versionID string

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q (expected a positive integer)", arg)
	}
	return id, nil
}

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "Inspect stored objects",
}

var objectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List objects with their latest version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		token := ""
		for {
			page, err := svc.ListObjectMetadata(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("list objects: %w", err)
			}
			for _, item := range page.Items {
				fmt.Printf("%d\t%s\t%s\n", item.ID, item.VersionID, item.LastModified.Format(time.RFC3339))
			}
			if page.ContinuationToken == "" {
				return nil
			}
			token = page.ContinuationToken
		}
	},
}

var objectsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print an object version as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		object, err := svc.GetObjectDescriptor(cmd.Context(), id, versionID)
		if err != nil {
			return err
		}
		return printJSON(object)
	},
}

var objectsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print the manifest history of an object, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		versions, err := svc.GetAllRootVersions(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(versions)
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect templates",
}

var templatesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a template version as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		template, err := svc.GetTemplate(cmd.Context(), id, versionID)
		if err != nil {
			return err
		}
		return printJSON(template)
	},
}

var templatesHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print the version history of a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		svc, err := buildService(cmd.Context())
		if err != nil {
			return err
		}
		versions, err := svc.GetTemplateVersions(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(versions)
	},
}

func init() {
	objectsGetCmd.Flags().StringVar(&versionID, "version", "", "version id (default: latest)")
	templatesGetCmd.Flags().StringVar(&versionID, "version", "", "version id (default: latest)")

	objectsCmd.AddCommand(objectsListCmd, objectsGetCmd, objectsHistoryCmd)
	templatesCmd.AddCommand(templatesGetCmd, templatesHistoryCmd)
}

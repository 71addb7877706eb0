package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// keyNameFlag names a new API key for audit listings.
var keyNameFlag string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage tenants, projects, and API keys",
	Long: `Administrative operations against the local stores. These commands
open the data directory directly and do not need a running daemon.`,
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

func init() {
	adminCmd.AddCommand(tenantCmd)
	adminCmd.AddCommand(projectCmd)
	adminCmd.AddCommand(apikeyCmd)

	tenantCmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a tenant",
		Args:  cobra.ExactArgs(1),
		RunE:  runTenantCreate,
	})
	tenantCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE:  runTenantList,
	})
	tenantCmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a tenant and all its data",
		Args:  cobra.ExactArgs(1),
		RunE:  runTenantDelete,
	})

	projectCmd.AddCommand(&cobra.Command{
		Use:   "create <tenant> <name>",
		Short: "Create a project under a tenant",
		Args:  cobra.ExactArgs(2),
		RunE:  runProjectCreate,
	})
	projectCmd.AddCommand(&cobra.Command{
		Use:   "list <tenant>",
		Short: "List a tenant's projects",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectList,
	})
	projectCmd.AddCommand(&cobra.Command{
		Use:   "delete <tenant> <name>",
		Short: "Delete a project and all its data",
		Args:  cobra.ExactArgs(2),
		RunE:  runProjectDelete,
	})

	apikeyCreate := &cobra.Command{
		Use:   "create <tenant> <project> <user>",
		Short: "Create an API key scoped to tenant/project/user",
		Long: `Create an API key. The plaintext key is printed exactly once;
only its hash is stored.`,
		Args: cobra.ExactArgs(3),
		RunE: runAPIKeyCreate,
	}
	apikeyCreate.Flags().StringVar(&keyNameFlag, "name", "", "human-readable key name")
	apikeyCmd.AddCommand(apikeyCreate)
	apikeyCmd.AddCommand(&cobra.Command{
		Use:   "list <tenant>",
		Short: "List a tenant's API keys",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyList,
	})
	apikeyCmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	})
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, err := a.registry.Admin().CreateTenant(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Created tenant %s (%s)\n", tenant.Name, tenant.ID)
	return nil
}

func runTenantList(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tenants, err := a.registry.Admin().ListTenants(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tCREATED")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.ID, t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runTenantDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.Admin().DeleteTenant(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted tenant %s\n", args[0])
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	project, err := a.registry.Admin().CreateProject(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Created project %s/%s (%s)\n", args[0], project.Name, project.ID)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	projects, err := a.registry.Admin().ListProjects(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tCREATED")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.ID, p.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.Admin().DeleteProject(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Deleted project %s/%s\n", args[0], args[1])
	return nil
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	plaintext, key, err := a.registry.Admin().CreateAPIKey(cmd.Context(), args[0], args[1], args[2], keyNameFlag)
	if err != nil {
		return err
	}
	fmt.Printf("Created API key %s for %s/%s/%s\n", key.ID, key.TenantID, key.ProjectID, key.UserID)
	fmt.Printf("\n  %s\n\n", plaintext)
	fmt.Println("Store this key now. It is not shown again.")
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.registry.Admin().ListAPIKeys(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tUSER\tNAME\tREVOKED\tCREATED")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			k.ID, k.ProjectID, k.UserID, k.Name, k.Revoked, k.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.Admin().RevokeAPIKey(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Revoked API key %s\n", args[0])
	return nil
}

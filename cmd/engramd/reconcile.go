package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Purge tombstoned fragments from both stores",
	Long: `Replay the tombstone log: every fragment condemned by a failed
write or delete is removed from the vector index and the metadata
store, then its tombstone is cleared. Safe to run while the daemon is
up; operations are idempotent.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resolved, err := a.registry.Memory().Reconcile(cmd.Context())
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	fmt.Printf("Resolved %d tombstone(s)\n", resolved)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-stream-client/internal/infra/store"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "List stored preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *store.DB) error {
			return printPreferences(cmd.Context(), cmd.OutOrStdout(), db, jsonOut)
		})
	},
}

var prefsUnsetCmd = &cobra.Command{
	Use:   "unset KEY",
	Short: "Remove a stored preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *store.DB) error {
			if err := db.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("unset %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		})
	},
}

func withStore(fn func(db *store.DB) error) error {
	db := store.NewDB(cfg.Store.Path)
	if err := db.Open(); err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printPreferences(ctx context.Context, w io.Writer, db *store.DB, asJSON bool) error {
	prefs, err := db.All(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		out, _ := json.MarshalIndent(prefs, "", "  ")
		fmt.Fprintln(w, string(out))
		return nil
	}

	if len(prefs) == 0 {
		fmt.Fprintln(w, "No preferences stored")
		return nil
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-24s %s\n", k, prefs[k])
	}
	return nil
}

func init() {
	prefsCmd.AddCommand(prefsUnsetCmd)
	rootCmd.AddCommand(prefsCmd)
}

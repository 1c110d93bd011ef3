package cliapp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/config"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/smo"
)

var flagUatManifest string

func init() {
	uatUsersCmd.Flags().StringVar(&flagUatManifest, "manifest", "", "path to an emitted manifest.json (e.g. <out>/manifest.json from build-ssdt)")
	_ = uatUsersCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(uatUsersCmd)
}

var uatUsersCmd = &cobra.Command{
	Use:   "uat-users",
	Short: "List static-entity tables matching the UAT-user predicate from an emitted manifest",
	RunE:  runUatUsers,
}

func runUatUsers(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	b, err := os.ReadFile(flagUatManifest) // #nosec G304 - operator-supplied path
	if err != nil {
		return fmt.Errorf("uatUsers.manifest.read.failed: %w", err)
	}
	var manifest smo.Manifest
	if err := json.Unmarshal(b, &manifest); err != nil {
		return fmt.Errorf("uatUsers.manifest.parse.failed: %w", err)
	}

	predicate := config.GetString("uat-users.predicate")
	matches := matchUatUsers(manifest, predicate)
	if len(matches) == 0 {
		logger.Info("uatUsers.skipped", "reason", "no tables matched the predicate", "predicate", predicate)
	} else {
		logger.Info("uatUsers.completed", "matches", len(matches), "predicate", predicate)
	}

	for _, t := range matches {
		fmt.Println(t)
	}
	return nil
}

// matchUatUsers filters the manifest's tables against a simple glob
// predicate (e.g. "*User*") matched against each table's logical name (spec
// §C.1), returning the matching effective table names.
func matchUatUsers(manifest smo.Manifest, predicate string) []string {
	var out []string
	for _, t := range manifest.Tables {
		if globMatch(predicate, t.LogicalName) {
			out = append(out, t.EffectiveTableName)
		}
	}
	return out
}

func globMatch(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

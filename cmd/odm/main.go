// Command odm inspects and edits odm models stored in a Bolt or Badger
// database described by a YAML schema file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "odm",
	Short: "query typed models in a key/value store",
	Long: fmt.Sprintf(`odm (v%s)

Defines the models of a YAML schema file against a Bolt or Badger database,
then finds, lists, reads, creates and removes their records.`, version),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of odm",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("odm v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	setupFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(rebuildCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

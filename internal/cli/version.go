package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/collabhq/collabd/internal/api"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show collabd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("collabd version " + api.Version)
		},
	}
}

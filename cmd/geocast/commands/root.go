package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for geocast
var RootCmd = &cobra.Command{
	Use:              "geocast",
	Short:            "geocast mesh messaging",
	TraverseChildren: true,
}

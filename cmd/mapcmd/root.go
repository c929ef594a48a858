package mapcmd

import (
	"github.com/spf13/cobra"

	"github.com/dmap-io/dmap/cmd/util"
	"github.com/dmap-io/dmap/lib/store"
	"github.com/dmap-io/dmap/rpc/client"
)

var (
	rpcMap store.IMap

	// MapCommands represents the map command group
	MapCommands = &cobra.Command{
		Use:               "map",
		Short:             "Perform consistent map operations",
		PersistentPreRunE: setupMapClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the map command
	util.SetupRPCClientFlags(MapCommands)

	// Set default shard ID for map operations (different from Lock default)
	MapCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the shard to connect to"))

	// Add subcommands
	MapCommands.AddCommand(putCmd)
	MapCommands.AddCommand(putIfAbsentCmd)
	MapCommands.AddCommand(putAndGetCmd)
	MapCommands.AddCommand(getCmd)
	MapCommands.AddCommand(getOrDefaultCmd)
	MapCommands.AddCommand(removeCmd)
	MapCommands.AddCommand(removeValueCmd)
	MapCommands.AddCommand(removeVersionCmd)
	MapCommands.AddCommand(replaceCmd)
	MapCommands.AddCommand(replaceValueCmd)
	MapCommands.AddCommand(replaceVersionCmd)
	MapCommands.AddCommand(containsKeyCmd)
	MapCommands.AddCommand(containsValueCmd)
	MapCommands.AddCommand(sizeCmd)
	MapCommands.AddCommand(isEmptyCmd)
	MapCommands.AddCommand(keysCmd)
	MapCommands.AddCommand(entriesCmd)
	MapCommands.AddCommand(clearCmd)
	MapCommands.AddCommand(iterateCmd)
	MapCommands.AddCommand(txCmd)
	MapCommands.AddCommand(perfTestCmd)
}

// setupMapClient initializes the RPC map client
func setupMapClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	shardId := util.GetShardID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the map client
	rpcMap, err = client.NewRPCMap(
		shardId,
		*config,
		t,
		s,
	)

	return err
}

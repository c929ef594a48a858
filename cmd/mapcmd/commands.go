package mapcmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmap-io/dmap/cmd/util"
	"github.com/dmap-io/dmap/lib/cmap"
)

// printUpdate prints the outcome of a single-key update operation
func printUpdate(res cmap.UpdateResult, err error) error {
	if err != nil {
		return err
	}
	if res.Value != nil {
		fmt.Printf("status=%s, value=%s, version=%d\n", res.Status, res.Value.Value, res.Value.Version)
	} else {
		fmt.Printf("status=%s\n", res.Status)
	}
	return nil
}

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.Put(args[0], []byte(args[1]))
			return printUpdate(res, err)
		},
	}
	putIfAbsentCmd = &cobra.Command{
		Use:   "putIfAbsent [key] [value]",
		Short: "Writes the value for a key only if the key is absent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.PutIfAbsent(args[0], []byte(args[1]))
			return printUpdate(res, err)
		},
	}
	putAndGetCmd = &cobra.Command{
		Use:   "putAndGet [key] [value]",
		Short: "Writes the value for a key and returns the new versioned value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.PutAndGet(args[0], []byte(args[1]))
			return printUpdate(res, err)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the versioned value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, ok, err := rpcMap.Get(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, value=%s, version=%d\n", key, ok, value.Value, value.Version)
			return nil
		},
	}
	getOrDefaultCmd = &cobra.Command{
		Use:   "getOrDefault [key] [default]",
		Short: "Reads the value for a key or returns the default",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := rpcMap.GetOrDefault(args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%s, version=%d\n", args[0], value.Value, value.Version)
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Removes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.Remove(args[0])
			return printUpdate(res, err)
		},
	}
	removeValueCmd = &cobra.Command{
		Use:   "removeValue [key] [expected]",
		Short: "Removes a key value pair only if the current value matches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.RemoveValue(args[0], []byte(args[1]))
			return printUpdate(res, err)
		},
	}
	removeVersionCmd = &cobra.Command{
		Use:   "removeVersion [key] [version]",
		Short: "Removes a key value pair only if the current version matches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			res, err := rpcMap.RemoveVersion(args[0], version)
			return printUpdate(res, err)
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [key] [value]",
		Short: "Writes the value for a key and prints the previous value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.Replace(args[0], []byte(args[1]))
			return printUpdate(res, err)
		},
	}
	replaceValueCmd = &cobra.Command{
		Use:   "replaceValue [key] [expected] [value]",
		Short: "Writes the value for a key only if the current value matches",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.ReplaceValue(args[0], []byte(args[1]), []byte(args[2]))
			return printUpdate(res, err)
		},
	}
	replaceVersionCmd = &cobra.Command{
		Use:   "replaceVersion [key] [version] [value]",
		Short: "Writes the value for a key only if the current version matches",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			res, err := rpcMap.ReplaceVersion(args[0], version, []byte(args[2]))
			return printUpdate(res, err)
		},
	}
	containsKeyCmd = &cobra.Command{
		Use:   "containsKey [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := rpcMap.ContainsKey(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	containsValueCmd = &cobra.Command{
		Use:   "containsValue [value]",
		Short: "Checks if any entry holds a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := rpcMap.ContainsValue([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("value=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	sizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Prints the number of entries in the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := rpcMap.Size()
			if err != nil {
				return err
			}
			fmt.Printf("size=%d\n", size)
			return nil
		},
	}
	isEmptyCmd = &cobra.Command{
		Use:   "isEmpty",
		Short: "Checks if the map is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			empty, err := rpcMap.IsEmpty()
			if err != nil {
				return err
			}
			fmt.Printf("empty=%t\n", empty)
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Prints all keys in the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := rpcMap.KeySet()
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
	entriesCmd = &cobra.Command{
		Use:   "entries",
		Short: "Prints all entries in the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := rpcMap.EntrySet()
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Printf("key=%s, value=%s, version=%d\n", entry.Key, entry.Value.Value, entry.Value.Version)
			}
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all entries from the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcMap.Clear()
			return printUpdate(res, err)
		},
	}

	iterateBatchSize int
	iterateCmd       = &cobra.Command{
		Use:   "iterate",
		Short: "Iterates over a frozen snapshot of the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Each iteration runs in its own session so that the server can
			// clean up the snapshot when the session is closed
			sessionID := uuid.NewString()
			defer func() { _ = rpcMap.CloseSession(sessionID) }()

			iteratorID, err := rpcMap.OpenIterator(sessionID)
			if err != nil {
				return err
			}
			defer func() { _ = rpcMap.CloseIterator(iteratorID) }()

			position := 0
			for {
				batch, found, err := rpcMap.Next(iteratorID, position, iterateBatchSize)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("iterator %d expired", iteratorID)
				}
				for _, entry := range batch.Entries {
					fmt.Printf("key=%s, value=%s, version=%d\n", entry.Key, entry.Value.Value, entry.Value.Version)
				}
				if !batch.HasMore {
					return nil
				}
				position = batch.Position
			}
		},
	}

	txRemoveKeys []string
	txCmd        = &cobra.Command{
		Use:   "tx [key=value]...",
		Short: "Applies a batch of updates atomically",
		Long:  "Applies a batch of updates in a single transaction. Each argument is a key=value pair to put. Keys to remove can be given via --remove. Either all updates are applied or none.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			updates := make([]cmap.MapUpdate, 0, len(args)+len(txRemoveKeys))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid update format: %s (expected key=value)", arg)
				}
				updates = append(updates, cmap.MapUpdate{
					Type:  cmap.UpdatePut,
					Key:   key,
					Value: []byte(value),
				})
			}
			for _, key := range txRemoveKeys {
				updates = append(updates, cmap.MapUpdate{
					Type: cmap.UpdateRemove,
					Key:  key,
				})
			}
			if len(updates) == 0 {
				return fmt.Errorf("no updates given")
			}

			txID := uuid.NewString()
			if _, err := rpcMap.Begin(txID); err != nil {
				return err
			}
			status, err := rpcMap.PrepareAndCommit(txID, updates)
			if err != nil {
				return err
			}
			fmt.Printf("txID=%s, status=%s\n", txID, status)
			return nil
		},
	}
)

func init() {
	iterateCmd.Flags().IntVar(&iterateBatchSize, "batch-size", 100, util.WrapString("Number of entries to fetch per batch"))
	txCmd.Flags().StringSliceVar(&txRemoveKeys, "remove", nil, util.WrapString("Keys to remove as part of the transaction"))
}

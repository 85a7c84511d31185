package kv

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the entry for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := rpcStore.Get(cmd.Context(), args[0])
			if store.IsNotFound(err) {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			} else if err != nil {
				return err
			}
			return printJSON(entry)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Creates or updates the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, created, err := rpcStore.Put(cmd.Context(), args[0], args[1], true)
			if err != nil {
				return err
			}
			if created {
				fmt.Println("created successfully")
			} else {
				fmt.Println("updated successfully")
			}
			return printJSON(entry)
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := rpcStore.Delete(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%v\n", args[0], deleted)
			return nil
		},
	}
	rangeCmd = &cobra.Command{
		Use:   "range [start] [end]",
		Short: "Reads all entries with start <= key <= end",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all {
				count := 0
				err := rpcStore.Iterate(cmd.Context(), args[0], args[1], func(entry store.Entry) error {
					count++
					return printJSON(entry)
				})
				if err != nil {
					return err
				}
				fmt.Printf("count=%d\n", count)
				return nil
			}

			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			cursor, _ := cmd.Flags().GetString("cursor")
			page, err := rpcStore.ReadRange(cmd.Context(), store.RangeQuery{
				Start:  args[0],
				End:    args[1],
				Limit:  limit,
				Offset: offset,
				Cursor: cursor,
			})
			if err != nil {
				return err
			}
			for _, entry := range page.Entries {
				if err := printJSON(entry); err != nil {
					return err
				}
			}
			fmt.Printf("count=%d, has_more=%v, next_cursor=%s\n", len(page.Entries), page.HasMore, page.NextCursor)
			return nil
		},
	}
	batchCmd = &cobra.Command{
		Use:   "batch [key=value]...",
		Short: "Creates or updates multiple keys at once",
		Long:  "Creates or updates multiple keys at once. The items are read from the arguments (key=value) or from a JSON file (--file, - for stdin) containing a list of {\"key\": ..., \"value\": ...} objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			items, err := readBatchItems(file, args)
			if err != nil {
				return err
			}
			entries, err := rpcStore.BatchPut(cmd.Context(), items, true)
			if err != nil {
				return err
			}
			fmt.Printf("batch of %d items written successfully\n", len(entries))
			for _, entry := range entries {
				fmt.Printf("key=%s, version=%d\n", entry.Key, entry.Version)
			}
			return nil
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Prints the cluster status as seen by a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := rpcStore.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints metadata about the table of a node",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return printJSON(rpcStore.GetDBInfo())
		},
	}
)

func init() {
	rangeCmd.Flags().Int("limit", 0, util.WrapString("Page size, 0 uses the maximum page size of the node"))
	rangeCmd.Flags().Int("offset", 0, util.WrapString("Number of matching entries to skip"))
	rangeCmd.Flags().String("cursor", "", util.WrapString("Last key of the previous page"))
	rangeCmd.Flags().Bool("all", false, util.WrapString("Read the whole range page by page"))

	batchCmd.Flags().String("file", "", util.WrapString("JSON file with the batch items, - reads from stdin"))
}

// readBatchItems parses the items of a batch command either from file or from key=value args
func readBatchItems(file string, args []string) ([]store.BatchItem, error) {
	if file != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("either --file or key=value arguments can be used, not both")
		}
		var r io.Reader = os.Stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		var items []store.BatchItem
		if err := json.NewDecoder(r).Decode(&items); err != nil {
			return nil, fmt.Errorf("invalid batch file: %w", err)
		}
		return items, nil
	}

	items := make([]store.BatchItem, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid item %q (expected key=value)", arg)
		}
		items = append(items, store.BatchItem{Key: key, Value: value})
	}
	return items, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

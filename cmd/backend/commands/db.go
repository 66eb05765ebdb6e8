package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/caiquemiranda/backend-base/internal/filedb"
)

func dbCmd() *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and edit a data file directly",
	}

	cmd.PersistentFlags().StringVar(&dataFile, "data", "backend.db", "database file path")

	cmd.AddCommand(
		dbPutCmd(&dataFile),
		dbGetCmd(&dataFile),
		dbListCmd(&dataFile),
		dbRmCmd(&dataFile),
	)

	return cmd
}

func openDataFile(path string) (*filedb.DB, error) {
	return filedb.Open(path, &filedb.Config{
		// one-shot invocations should not spawn background vacuuming
		AutoVacuumOnlyOnClose: true,
	})
}

func dbPutCmd(dataFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <json>",
		Short: "Insert or replace a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1]

			if !json.Valid([]byte(raw)) {
				return errors.Errorf("value for key %s is not valid json", key)
			}

			db, err := openDataFile(*dataFile)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Update(cmd.Context(), func(tx *filedb.Tx) error {
				return tx.InsertOrReplace(key, json.RawMessage(raw))
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", key)
			return nil
		},
	}
}

func dbGetCmd(dataFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDataFile(*dataFile)
			if err != nil {
				return err
			}
			defer db.Close()

			return db.View(cmd.Context(), func(tx *filedb.Tx) error {
				doc, err := tx.Get(args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), doc.RawString())
				return nil
			})
		},
	}
}

func dbListCmd(dataFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "Print keys and documents, optionally under a key prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDataFile(*dataFile)
			if err != nil {
				return err
			}
			defer db.Close()

			return db.View(cmd.Context(), func(tx *filedb.Tx) error {
				var docs []*filedb.Document
				if len(args) == 1 {
					docs = tx.FindPrefix(args[0], filedb.AscOrder)
				} else {
					docs = tx.FindAll(filedb.AscOrder)
				}

				for _, doc := range docs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", doc.Key(), doc.RawString())
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%d documents\n", len(docs))
				return nil
			})
		},
	}
}

func dbRmCmd(dataFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Delete documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDataFile(*dataFile)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Update(cmd.Context(), func(tx *filedb.Tx) error {
				return tx.Delete(args...)
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d key(s)\n", len(args))
			return nil
		},
	}
}

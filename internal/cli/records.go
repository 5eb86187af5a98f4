package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atinyakov/consultdesk/internal/client/storage"
	"github.com/atinyakov/consultdesk/internal/models"
)

func parseCollection(name string) (models.Collection, error) {
	c := models.Collection(strings.ReplaceAll(strings.ToLower(name), "-", "_"))
	if !c.Valid() {
		names := make([]string, len(models.Collections))
		for i, known := range models.Collections {
			names[i] = string(known)
		}
		return "", fmt.Errorf("unknown collection %q (one of %s)", name, strings.Join(names, ", "))
	}
	return c, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

type listFlags struct {
	ordering string
	limit    int
	offset   int
	author   int64
}

func (f listFlags) query() url.Values {
	q := url.Values{}
	if f.ordering != "" {
		q.Set("ordering", f.ordering)
	}
	if f.limit > 0 {
		q.Set("limit", strconv.Itoa(f.limit))
	}
	if f.offset > 0 {
		q.Set("offset", strconv.Itoa(f.offset))
	}
	if f.author > 0 {
		q.Set("author", strconv.FormatInt(f.author, 10))
	}
	return q
}

func newListCmd(a *app) *cobra.Command {
	var f listFlags

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List records of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			recs, err := a.client.List(cmd.Context(), c, f.query())
			if err != nil {
				return explain(err)
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.ordering, "ordering", "", "sort field, prefix with - for descending")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "records to skip")
	cmd.Flags().Int64Var(&f.author, "author", 0, "only records by this member id")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			rec, err := a.client.Get(cmd.Context(), c, id)
			if err != nil {
				return explain(err)
			}
			return printRecord(cmd.OutOrStdout(), rec)
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <collection> [key=value...]",
		Short: "Create a record; fields are prompted when none are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			fields, err := fieldsFrom(cmd, args[1:])
			if err != nil {
				return err
			}
			rec, err := a.client.Create(cmd.Context(), c, fields)
			if err != nil {
				return explain(err)
			}
			return printRecord(cmd.OutOrStdout(), rec)
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update <collection> <id> [key=value...]",
		Short: "Patch a record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			patch, err := fieldsFrom(cmd, args[2:])
			if err != nil {
				return err
			}

			var rec *models.Record
			if c == models.Posts {
				rec, err = a.store.UpdatePost(cmd.Context(), id, patch)
			} else {
				rec, err = a.client.Update(cmd.Context(), c, id, patch)
			}
			if err != nil {
				return explain(err)
			}
			return printRecord(cmd.OutOrStdout(), rec)
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCollection(args[0])
			if err != nil {
				return err
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}

			if c == models.Posts {
				err = a.store.DeletePost(cmd.Context(), id)
			} else {
				err = a.client.Remove(cmd.Context(), c, id)
			}
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%d\n", c, id)
			return nil
		},
	}
}

func fieldsFrom(cmd *cobra.Command, pairs []string) (map[string]any, error) {
	if len(pairs) > 0 {
		return storage.ParseFields(pairs)
	}
	return storage.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).Fields()
}

func printRecords(w io.Writer, recs []models.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No records")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%-6d %s\n", r.ID, summary(r))
	}
}

func printRecord(w io.Writer, rec *models.Record) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}

// summary picks the most descriptive field for one-line listings.
func summary(r models.Record) string {
	for _, key := range []string{"title", "name", "email", "message"} {
		if v, ok := r.Fields[key]; ok {
			return fmt.Sprint(v)
		}
	}
	b, _ := json.Marshal(r.Fields)
	return string(b)
}

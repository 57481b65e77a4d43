package main

import (
	"context"
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/andreyvit/odm"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	findCmd = &cobra.Command{
		Use:   "find <model> <query>",
		Short: "Find records matching a JSON query",
		Long: `Find records matching a JSON query with exactly one operation, e.g.

  odm find User '{"eq": {"name": "age", "value": 23}}'
  odm find User '{"between": {"name": "age", "lower": 30, "upper": 70}}' --sort age`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q odm.Query
			if err := json.Unmarshal([]byte(args[1]), &q); err != nil {
				return err
			}
			return runFind(cmd, args[0], q)
		},
	}

	listCmd = &cobra.Command{
		Use:   "list <model>",
		Short: "List all records of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(cmd, args[0], odm.All())
		},
	}

	getCmd = &cobra.Command{
		Use:   "get <model> <id>",
		Short: "Print one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := lookupModel(args[0])
			if err != nil {
				return err
			}
			id, err := odm.NormalizeID(args[1])
			if err != nil {
				return err
			}
			r, err := m.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(r.ToMap())
		},
	}

	putCmd = &cobra.Command{
		Use:   "put <model> <json-props>",
		Short: "Create a record from a JSON object, or update one with --id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := lookupModel(args[0])
			if err != nil {
				return err
			}
			var props map[string]any
			if err := json.Unmarshal([]byte(args[1]), &props); err != nil {
				return err
			}
			r, err := putRecord(cmd.Context(), m, cmd.Flag("id").Value.String(), props)
			if err != nil {
				return err
			}
			return printJSON(r.ToMap())
		},
	}

	removeCmd = &cobra.Command{
		Use:   "remove <model> <id>",
		Short: "Remove a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := lookupModel(args[0])
			if err != nil {
				return err
			}
			id, err := odm.NormalizeID(args[1])
			if err != nil {
				return err
			}
			return m.Instance(id).Remove(cmd.Context())
		},
	}

	statsCmd = &cobra.Command{
		Use:   "stats [model...]",
		Short: "Print index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = registry.Names()
			}
			var out []odm.Stats
			for _, name := range args {
				m, err := lookupModel(name)
				if err != nil {
					return err
				}
				if err := m.IndexLoaded(cmd.Context()); err != nil {
					return err
				}
				out = append(out, m.Stats())
			}
			if err := printJSON(out); err != nil {
				return err
			}
			if ok, _ := cmd.Flags().GetBool("metrics"); ok {
				metrics.WritePrometheus(os.Stdout, false)
			}
			return nil
		},
	}

	rebuildCmd = &cobra.Command{
		Use:   "rebuild <model>",
		Short: "Rebuild a model's indices and print their statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := lookupModel(args[0])
			if err != nil {
				return err
			}
			if err := m.Rebuild(cmd.Context()); err != nil {
				return err
			}
			return printJSON(m.Stats())
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{findCmd, listCmd} {
		cmd.Flags().Int("offset", 0, "skip this many matches")
		cmd.Flags().Int("limit", 0, "return at most this many records (0 = all)")
		cmd.Flags().String("sort", "", "property to sort by")
		cmd.Flags().Bool("desc", false, "sort in descending order")
		cmd.Flags().Bool("count", false, "print the total match count instead of records")
	}
	putCmd.Flags().String("id", "", "update the record with this id instead of creating one")
	statsCmd.Flags().Bool("metrics", false, "also print Prometheus metrics")
}

func runFind(cmd *cobra.Command, model string, q odm.Query) error {
	m, err := lookupModel(model)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	var opt odm.FindOptions
	opt.Offset, _ = flags.GetInt("offset")
	opt.Limit, _ = flags.GetInt("limit")
	opt.SortBy, _ = flags.GetString("sort")
	opt.Descending, _ = flags.GetBool("desc")
	if count, _ := flags.GetBool("count"); count {
		var meta odm.FindMeta
		opt.Meta, opt.NoLoad, opt.Limit = &meta, true, 0
		if _, err := m.Find(cmd.Context(), q, opt); err != nil {
			return err
		}
		return printJSON(map[string]int{"count": meta.Count})
	}
	recs, err := m.Find(cmd.Context(), q, opt)
	if err != nil {
		return err
	}
	out := make([]map[string]any, len(recs))
	for i, r := range recs {
		out[i] = r.ToMap()
	}
	return printJSON(out)
}

func putRecord(ctx context.Context, m *odm.Model, idstr string, props map[string]any) (*odm.Record, error) {
	var r *odm.Record
	if idstr == "" {
		r = m.New(props)
	} else {
		id, err := odm.NormalizeID(idstr)
		if err != nil {
			return nil, err
		}
		r, err = m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		for name, v := range props {
			if err := r.Set(name, v); err != nil {
				return nil, err
			}
		}
	}
	if err := r.Save(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

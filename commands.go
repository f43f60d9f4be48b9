package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/orian/clickguard/catalog"
	"github.com/orian/clickguard/charts"
	"github.com/orian/clickguard/models"
	"github.com/orian/clickguard/validation"
)

// parseParamFlags turns repeated --param key=value flags into a bag.
func parseParamFlags(raw []string) (models.Params, error) {
	out := models.Params{}
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		out[k] = models.StringParam(v)
	}
	return out, nil
}

func newChartCmd(_ *app) *cobra.Command {
	var (
		interval  string
		lastHours int
		params    []string
	)
	cmd := &cobra.Command{
		Use:   "chart [key]",
		Short: "Print the SQL generated for a chart, or list charts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			reg := charts.Default()
			if len(args) == 0 {
				for _, k := range reg.Keys() {
					fmt.Fprintln(out, k)
				}
				return nil
			}

			var iv charts.Interval
			if interval != "" {
				var err error
				if iv, err = charts.ParseInterval(interval); err != nil {
					return err
				}
			}
			bag, err := parseParamFlags(params)
			if err != nil {
				return err
			}

			res, err := reg.Build(args[0], charts.Params{Interval: iv, LastHours: lastHours, Params: bag})
			if err != nil {
				return err
			}
			printChart(out, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "", "bucket interval ("+strings.Join(charts.IntervalNames(), "|")+")")
	cmd.Flags().IntVar(&lastHours, "last-hours", 0, "look-back window in hours")
	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter key=value (repeatable)")
	return cmd
}

func printChart(w io.Writer, res charts.Result) {
	if !res.IsMulti() {
		fmt.Fprintln(w, res.Query)
		if bound := models.SanitizeQueryParams(res.QueryParams); len(bound) > 0 {
			b, _ := json.Marshal(bound)
			fmt.Fprintf(w, "-- params: %s\n", b)
		}
		if res.Optional {
			fmt.Fprintf(w, "-- optional, tables: %s\n", strings.Join(res.TableCheck, ", "))
		}
		return
	}
	for i, q := range res.Queries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "-- %s\n%s\n", q.Key, q.Query)
	}
}

func newCatalogCmd(_ *app) *cobra.Command {
	var serverVersion string
	cmd := &cobra.Command{
		Use:   "catalog [name]",
		Short: "List catalog queries or print the SQL resolved for a server version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cat := catalog.Default()
			if len(args) == 0 {
				renderCatalog(out, cat.All())
				return nil
			}

			cfg, err := cat.Lookup(args[0])
			if err != nil {
				return err
			}
			var v *models.ServerVersion
			if serverVersion != "" {
				if v = models.ParseVersion(serverVersion); v == nil {
					return fmt.Errorf("invalid version %q", serverVersion)
				}
			}
			fmt.Fprintln(out, cfg.GetSQL(v))
			return nil
		},
	}
	cmd.Flags().StringVar(&serverVersion, "version", "", "server version to resolve SQL variants for (default: earliest)")
	return cmd
}

func renderCatalog(w io.Writer, configs []models.QueryConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Variants", "Optional", "Params", "Columns"})
	for _, c := range configs {
		variants := "-"
		if c.IsVersioned() {
			since := make([]string, len(c.Variants))
			for i, v := range c.Variants {
				since[i] = v.Since.String()
			}
			variants = strings.Join(since, ", ")
		}
		params := strings.Join(slices.Sorted(maps.Keys(c.DefaultParams)), ", ")
		t.AppendRow(table.Row{c.Name, variants, c.Optional, params, len(c.Columns)})
	}
	t.Render()
}

func newCheckCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <sql>",
		Short: "Run the SQL safety validator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiErr := validation.ValidateSQLQuery(args[0]); apiErr != nil {
				if p, ok := apiErr.Details["pattern"]; ok {
					return fmt.Errorf("%s (%v)", apiErr.Message, p)
				}
				return errors.New(apiErr.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		hostID int
		params []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query <name|sql>",
		Short: "Execute a catalog query or ad-hoc SELECT and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bag, err := parseParamFlags(params)
			if err != nil {
				return err
			}
			svc, cleanup, err := a.newService()
			if err != nil {
				return err
			}
			defer cleanup()

			var resp *models.Response
			if _, ok := svc.catalog.GetQueryConfigByName(args[0]); ok {
				resp = svc.RunQuery(cmd.Context(), hostID, args[0], bag)
			} else {
				resp = svc.RunSQL(cmd.Context(), &models.QueryRequest{HostID: hostID, SQL: args[0], Params: bag})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return err
				}
			}
			if !resp.Success {
				return resp.Error
			}
			if !asJSON {
				rows, _ := resp.Data.([]models.Row)
				renderTable(out, resp.Metadata.Columns, rows)
				if resp.Metadata.Degraded {
					fmt.Fprintln(out, "(optional table unavailable, no data)")
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hostID, "host-id", 0, "configured host index")
	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response envelope as JSON")
	return cmd
}

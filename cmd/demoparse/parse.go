package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dbalders/demoparser/demo"
	"github.com/spf13/cobra"
)

const (
	formatSummary = "summary"
	formatCBOR    = "cbor"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <demo>",
		Short: "Decode one demo",
		Long: `Decode one demo from the source and print a summary, or write the
collected output as CBOR.

Examples:
  demoparse parse match.dem --props m_iHealth,m_ArmorValue
  demoparse parse match.dem --player-props m_iHealth --format cbor -o out.cbor
  demoparse parse --source s3://demos/2024 final.dem --event player_death`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return a.runParse(cmd, args[0])
		},
	}
	addParserFlags(cmd)
	cmd.Flags().String(keyFormat, formatSummary, "output format: summary or cbor")
	cmd.Flags().StringP(keyOutput, "o", "-", "output file, - for stdout")
	return cmd
}

func (a *app) runParse(cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	data, err := a.source.Load(ctx, name)
	if err != nil {
		return err
	}
	out, err := a.parser.Parse(ctx, data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	w := cmd.OutOrStdout()
	if path := a.v.GetString(keyOutput); path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch format := a.v.GetString(keyFormat); format {
	case formatCBOR:
		return writeCBOR(w, out)
	case formatSummary:
		writeSummary(w, name, out)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeCBOR(w io.Writer, out *demo.Output) error {
	codec, err := demo.NewOutputCodec()
	if err != nil {
		return err
	}
	data, err := demo.EncodeOutput(codec, out)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeSummary(w io.Writer, name string, out *demo.Output) {
	h := out.Header
	fmt.Fprintf(w, "%s: %s on %s, build %d, %d ticks\n", name, h.ServerName, h.MapName, h.BuildNum, out.LastTick)

	columns := make([]string, 0, len(out.Columns))
	for c := range out.Columns {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	for _, c := range columns {
		fmt.Fprintf(w, "  column %s: %d rows\n", c, len(out.Columns[c]))
	}
	if len(out.GameEvents) > 0 {
		fmt.Fprintf(w, "  game events: %d\n", len(out.GameEvents))
	}
	if len(out.Projectiles) > 0 {
		fmt.Fprintf(w, "  projectile samples: %d\n", len(out.Projectiles))
	}
	for _, p := range out.Players {
		fmt.Fprintf(w, "  player %d: %s (%d)\n", p.Slot, p.Name, p.SteamID)
	}
	for _, warning := range out.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

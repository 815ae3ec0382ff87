package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dbalders/demoparser/demo"
	"github.com/spf13/cobra"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [demo...]",
		Short: "Decode many demos concurrently",
		Long: `Decode the named demos, or every demo the source lists under --prefix,
writing one CBOR file per demo to --out-dir when given.

Examples:
  demoparse batch --source ./demos --props m_iHealth --out-dir ./out
  demoparse batch --source s3://demos --prefix 2024/ --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return a.runBatch(cmd, args)
		},
	}
	addParserFlags(cmd)
	cmd.Flags().String(keyPrefix, "", "list demos under this prefix when none are named")
	cmd.Flags().Int(keyConcurrency, 4, "demos decoded at once")
	cmd.Flags().String(keyOutDir, "", "write <demo>.cbor files here")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, names []string) error {
	ctx := cmd.Context()
	if len(names) == 0 {
		var err error
		names, err = a.source.List(ctx, a.v.GetString(keyPrefix))
		if err != nil {
			return err
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no demos found")
	}
	a.log.Infof("decoding %d demos", len(names))

	results, err := a.parser.ParseBatch(ctx, names, a.source.Load, a.v.GetInt(keyConcurrency))
	if err != nil {
		return err
	}

	outDir := a.v.GetString(keyOutDir)
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	sort.Strings(names)
	w := cmd.OutOrStdout()
	failed := 0
	for _, name := range names {
		r, ok := results.Load(name)
		if !ok {
			continue
		}
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s: %v\n", name, r.Err)
			continue
		}
		writeSummary(w, name, r.Output)
		if outDir != "" {
			if err := writeOutputFile(outDir, name, r.Output); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d demos failed", failed, len(names))
	}
	return nil
}

func writeOutputFile(dir, name string, out *demo.Output) error {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	f, err := os.Create(filepath.Join(dir, base+".cbor"))
	if err != nil {
		return err
	}
	if err := writeCBOR(f, out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

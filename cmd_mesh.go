package main

import (
	"fmt"

	"github.com/chazu/trajscreen/pkg/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var meshFlags struct {
	config string
}

var meshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Build the structure meshes of a run file and print their sizes",
	RunE:  runMesh,
}

func init() {
	f := meshCmd.Flags()
	f.StringVarP(&meshFlags.config, "config", "c", "", "Run file (required)")

	_ = meshCmd.MarkFlagRequired("config")
}

func runMesh(cmd *cobra.Command, _ []string) error {
	con, err := config.Read(meshFlags.config)
	if err != nil {
		return err
	}
	if err := applyLogConfig(cmd, con); err != nil {
		return err
	}

	app := NewApp()
	p, err := app.LoadPlan(con.Run.Plan)
	if err != nil {
		return err
	}
	reg, err := app.BuildRegistry(cmd.Context(), con, p)
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"#", "Structure", "Sources", "Vertices", "Triangles", "Bounds"})
	for i := 0; i < reg.Len(); i++ {
		s := reg.At(i)
		bounds := "empty"
		if lo, hi, ok := s.Mesh.Bounds(); ok {
			bounds = fmt.Sprintf("(%.4g, %.4g, %.4g) - (%.4g, %.4g, %.4g)", lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z)
		}
		tw.AppendRow(table.Row{s.Index, s.Name, fmt.Sprint(s.Sources), s.Mesh.VertexCount(), s.Mesh.TriangleCount(), bounds})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	_, err = fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
	return err
}

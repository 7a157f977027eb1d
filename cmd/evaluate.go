package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/slopewatch/evac-cli/internal/geo"
)

var (
	evalLat float64
	evalLng float64
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate evacuation guidance for a position",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		records, err := e.Source.Sensors(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch sensor data")
		}

		decision, err := e.Engine.Evaluate(ctx, geo.Point{Lat: evalLat, Lng: evalLng}, records)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(decision)
	},
}

func init() {
	evaluateCmd.Flags().Float64Var(&evalLat, "lat", 0, "latitude of the position to evaluate")
	evaluateCmd.Flags().Float64Var(&evalLng, "lng", 0, "longitude of the position to evaluate")
	_ = evaluateCmd.MarkFlagRequired("lat")
	_ = evaluateCmd.MarkFlagRequired("lng")
	rootCmd.AddCommand(evaluateCmd)
}

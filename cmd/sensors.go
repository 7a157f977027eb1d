package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/slopewatch/evac-cli/internal/hazard"
	"github.com/slopewatch/evac-cli/internal/sensor"
)

var sensorsActiveOnly bool

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "List current sensor records from the configured source",
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

		if sensorsActiveOnly {
			active := make([]sensor.Record, 0, len(records))
			for _, r := range records {
				if r.Active() {
					active = append(active, r)
				}
			}
			records = active
		}

		out := struct {
			Records []sensor.Record `json:"records"`
			Zones   int             `json:"hazard_zones"`
		}{
			Records: records,
			Zones:   len(hazard.FromSensors(records)),
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	sensorsCmd.Flags().BoolVar(&sensorsActiveOnly, "active", false, "only show operationally active sensors")
	rootCmd.AddCommand(sensorsCmd)
}

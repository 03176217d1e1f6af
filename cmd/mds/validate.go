package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/atd-dts/mds-ingest/pkg/provider"
	"github.com/atd-dts/mds-ingest/pkg/timezone"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a local trips file against a time window",
	Long: `Validate reads a local trips JSON file in the provider envelope shape,
the same layout extract stores and --file writes, and checks that every
trip ended inside the window. Trips with missing or zero timestamps
fail the command.

Examples:
  # Check an extract against the hour it was pulled for
  mds validate --file trips.json --time-max 2020-1-1-1

  # Check a day's worth of trips
  mds validate --file trips.json --time-max 2020-1-2-0 --interval 24`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().String("file", "", "The JSON file to validate (required)")
	validateCmd.Flags().String("time-max", "", "The maximum time where the trip ended, format 'yyyy-mm-dd-hh' (required)")
	validateCmd.Flags().Int("interval", 1, "Window length in hours, relative to time-max")
	validateCmd.Flags().String("time-zone", timezone.DefaultZone, "Time zone of the window")
	_ = validateCmd.MarkFlagRequired("file")
	_ = validateCmd.MarkFlagRequired("time-max")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	timeMax, _ := cmd.Flags().GetString("time-max")
	interval, _ := cmd.Flags().GetInt("interval")
	zone, _ := cmd.Flags().GetString("time-zone")

	if interval <= 0 {
		interval = 1
	}

	year, month, day, hour, err := timezone.ParseBlockTime(timeMax)
	if err != nil {
		return fmt.Errorf("invalid time-max: %v", err)
	}
	window, err := timezone.NewWindow(year, month, day, hour, -time.Duration(interval)*time.Hour, zone)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	var envelope provider.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("invalid trips file %s: %v", file, err)
	}

	fmt.Printf("Validating: %s\n", file)
	fmt.Printf("  Window: %s to %s (%s)\n", window.StartCivil(), window.EndCivil(), zone)
	fmt.Printf("  Trips: %d\n", len(envelope.Data.Trips))

	var passed, outside, malformed int
	for _, trip := range envelope.Data.Trips {
		tripID, _ := trip["trip_id"].(string)
		endTime := epochOf(trip["end_time"])
		startTime := epochOf(trip["start_time"])

		if endTime == 0 || startTime == 0 {
			malformed++
			fmt.Printf("✗ Trip %s: missing or zero timestamps\n", tripID)
			continue
		}

		if endTime > window.UnixStart() && endTime <= window.UnixEnd() {
			passed++
			fmt.Printf("✓ Trip %s: end_time %d in window\n", tripID, endTime)
		} else {
			outside++
			fmt.Printf("✗ Trip %s: end_time %d outside window (%d, %d]\n",
				tripID, endTime, window.UnixStart(), window.UnixEnd())
		}
	}

	fmt.Printf("Result: %d in window, %d outside, %d malformed\n", passed, outside, malformed)
	if malformed > 0 {
		return fmt.Errorf("%d trip(s) with missing timestamps", malformed)
	}
	return nil
}

// epochOf coerces the loosely typed timestamp forms provider feeds emit
// into whole seconds. Unparseable values collapse to zero, which the
// caller treats as malformed.
func epochOf(v any) int64 {
	switch n := v.(type) {
	case float64:
		return timezone.TruncateEpoch(int64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return timezone.TruncateEpoch(i)
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return timezone.TruncateEpoch(i)
		}
	}
	return 0
}

// Package score evaluates a recorded set of readings offline.
package score

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
	"github.com/tphakala/safewatch/internal/scoring"
	"github.com/tphakala/safewatch/internal/signals"
	"github.com/tphakala/safewatch/internal/suncalc"
)

// Command creates the score command.
func Command() *cobra.Command {
	var (
		input  string
		asJSON bool
		userID string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score readings from a YAML or JSON file with default thresholds",
		Long: `Score one set of readings the way the service would, without storing anything.

The file holds sensorData, contextData and location in the API's request format.
Omitted environment and location measurements are treated as unknown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return errors.Newf("--input is required").
					Component("cmd").
					Category(errors.CategoryValidation).
					Build()
			}
			readings, err := readReadings(input)
			if err != nil {
				return err
			}

			norm := signals.NewNormalizer(time.Now, suncalc.NewSunCalc())
			res := scoring.NewEngine().Evaluate(norm.Normalize(readings), model.DefaultThresholds(userID))
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Readings file (.yaml, .yml or .json)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&userID, "user", "offline", "User id for the default thresholds")
	return cmd
}

func readReadings(path string) (model.Readings, error) {
	var r model.Readings
	data, err := os.ReadFile(path)
	if err != nil {
		return r, errors.New(err).
			Component("cmd").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	// YAML goes through JSON so that omitted fields get the same Unknown
	// defaults as API requests.
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return r, inputError(err, path)
		}
		if data, err = json.Marshal(doc); err != nil {
			return r, inputError(err, path)
		}
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, inputError(err, path)
	}
	return r, nil
}

func inputError(err error, path string) error {
	return errors.New(fmt.Errorf("invalid readings file: %w", err)).
		Component("cmd").
		Category(errors.CategoryValidation).
		Context("path", path).
		Build()
}

func printResult(w io.Writer, res scoring.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	b := res.Breakdown
	_, err := fmt.Fprintf(w,
		"classification: %s\ntotal:          %.1f\nsensor:         %.1f\ncontext:        %.1f\nlocation:       %.1f\ncrowd:          %.1f\n",
		res.Classification, b.TotalScore, b.SensorScore, b.ContextScore, b.LocationScore, b.CrowdScore)
	return err
}

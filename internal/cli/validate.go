package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/couchcryptid/lidar-ingest/internal/adapter/netcdf"
	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/spf13/cobra"
)

// ValidationResult reports the checks run on one dataset file.
type ValidationResult struct {
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Times    int      `json:"times"`
	Problems []string `json:"problems,omitempty"`
}

// ErrInvalidDataset is returned by validate when any dataset has problems.
var ErrInvalidDataset = errors.New("dataset validation failed")

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dataset.nc>...",
		Short: "Check canonical datasets for ordering and layout problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []ValidationResult
			invalid := 0
			for _, path := range args {
				res, err := validateDataset(path)
				if err != nil {
					return err
				}
				if !res.Valid {
					invalid++
				}
				results = append(results, res)
			}

			w := cmd.OutOrStdout()
			if rootOpts.jsonOutput() {
				if err := writeJSON(w, results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					status := "ok"
					if !res.Valid {
						status = "INVALID"
					}
					fmt.Fprintf(w, "%-7s %s (%d times)\n", status, res.Path, res.Times)
					for _, p := range res.Problems {
						fmt.Fprintf(w, "        %s\n", p)
					}
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", ErrInvalidDataset, invalid, len(results))
			}
			return nil
		},
	}
}

func validateDataset(path string) (ValidationResult, error) {
	if _, err := os.Stat(path); err != nil {
		return ValidationResult{}, err
	}
	ds, err := netcdf.Open(path)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	res := ValidationResult{Path: path}
	res.Times, _ = ds.DimensionExtent(domain.DimTime)
	for _, p := range domain.Verify(ds) {
		res.Problems = append(res.Problems, p.Error())
	}
	res.Valid = len(res.Problems) == 0
	return res, nil
}

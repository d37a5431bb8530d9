package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/quakesim/internal/config"
	apperrors "github.com/ZanzyTHEbar/quakesim/internal/errors"
	"github.com/ZanzyTHEbar/quakesim/internal/inference"
	"github.com/ZanzyTHEbar/quakesim/internal/model"
)

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score [file]",
		Short: "Score a building with the heuristic formula",
		Long:  `Reads a building as JSON from file, or from stdin when file is "-" or omitted.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readBuilding(cmd, args)
			if err != nil {
				return err
			}
			out, err := inference.NewHeuristicEngine().Infer(cmd.Context(), raw)
			if err != nil {
				return describe(err)
			}
			return writeJSON(cmd.OutOrStdout(), result(out))
		},
	}
}

func newPredictCmd(configPath *string) *cobra.Command {
	var modelURI string

	cmd := &cobra.Command{
		Use:   "predict [file]",
		Short: "Score a building with a model bundle",
		Long: `Loads the bundle at --model (a path, s3:// or gs:// URI; defaults to the
configured model) and prints the prediction with its feature importances.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if modelURI == "" {
				modelURI = cfg.Model.URI
			}
			if modelURI == "" {
				return fmt.Errorf("no model bundle: pass --model or set MODEL_URI")
			}

			raw, err := readBuilding(cmd, args)
			if err != nil {
				return err
			}
			m, err := loadBundle(cmd.Context(), cfg, modelURI)
			if err != nil {
				return err
			}
			defer m.Close()

			engine, err := inference.NewModelEngine(m, nil)
			if err != nil {
				return err
			}
			out, err := engine.Infer(cmd.Context(), raw)
			if err != nil {
				return describe(err)
			}
			return writeJSON(cmd.OutOrStdout(), result(out))
		},
	}

	cmd.Flags().StringVar(&modelURI, "model", "", "Model bundle URI")
	return cmd
}

type scoreResult struct {
	Mode              string             `json:"mode"`
	Model             string             `json:"model,omitempty"`
	Prediction        float64            `json:"prediction"`
	DamageGrade       int                `json:"damage_grade,omitempty"`
	RiskLevel         string             `json:"risk_level,omitempty"`
	Probabilities     map[string]float64 `json:"probabilities,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	TopFeature        string             `json:"top_feature,omitempty"`
}

func result(out *inference.Outcome) scoreResult {
	return scoreResult{
		Mode:              out.Mode,
		Model:             out.Model,
		Prediction:        out.Value(),
		DamageGrade:       out.DamageGrade,
		RiskLevel:         string(out.RiskLevel),
		Probabilities:     out.Probabilities,
		FeatureImportance: out.FeatureImportance,
		TopFeature:        out.TopFeature(),
	}
}

func readBuilding(cmd *cobra.Command, args []string) (inference.RawInput, error) {
	var (
		body []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(args[0])
	}
	if err != nil {
		return inference.RawInput{}, fmt.Errorf("read building: %w", err)
	}
	raw, err := inference.ParseRaw(body)
	if err != nil {
		return inference.RawInput{}, describe(err)
	}
	return raw, nil
}

func loadBundle(ctx context.Context, cfg *config.Config, uri string) (*model.Model, error) {
	cacheDir := cfg.Model.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "quakesim")
	}
	return model.Load(ctx, uri, model.LoadOptions{
		Artifact: cfg.Model.Artifact,
		CacheDir: cacheDir,
	})
}

// describe reduces an application error to its client-facing message.
func describe(err error) error {
	appErr := apperrors.ToAppError(err)
	return fmt.Errorf("%s: %s", appErr.Category, appErr.Message())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

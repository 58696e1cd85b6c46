// Package main provides the clustermap CLI entry point.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/manifoldlab/clustermap"
	"github.com/manifoldlab/clustermap/metric"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clustermap",
		Short: "Joint manifold embedding and clustering of tabular data",
		Long: `clustermap embeds high-dimensional data into a low-dimensional space
while simultaneously discovering a clustering of it, coupling a
manifold-preserving layout with self-training cluster forces.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clustermap v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "metrics",
		Short: "List the supported distance metrics",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range metric.Names() {
				fmt.Println(name)
			}
		},
	})

	fitCmd := &cobra.Command{
		Use:   "fit [input.csv]",
		Short: "Fit an embedding and clustering from a CSV of points",
		Long: `Fit reads one point per CSV row (numeric columns, no header) and writes
the embedding, one hard cluster label per point, and the cluster centroids.`,
		Args: cobra.ExactArgs(1),
		RunE: runFit,
	}
	fitCmd.Flags().Int("clusters", 0, "Number of clusters to discover (required)")
	fitCmd.Flags().Int("neighbors", 15, "Local neighborhood size")
	fitCmd.Flags().Int("components", 2, "Embedding dimension")
	fitCmd.Flags().String("metric", "euclidean", "Distance metric, or 'precomputed' for a distance matrix input")
	fitCmd.Flags().Int("epochs", 0, "Optimization epochs (0 selects automatically)")
	fitCmd.Flags().Float64("min-dist", 0.1, "Minimum spacing of points in the embedding")
	fitCmd.Flags().Float64("spread", 1.0, "Scale of the embedded point spacing")
	fitCmd.Flags().String("init", "spectral", "Initial layout: spectral or random")
	fitCmd.Flags().Int64("seed", 0, "Random seed")
	fitCmd.Flags().Int("workers", 0, "Worker goroutines (0 uses all cores)")
	fitCmd.Flags().String("target", "", "Optional CSV of class labels for supervised fitting (-1 for unlabeled)")
	fitCmd.Flags().String("embedding-out", "embedding.csv", "Output path for the embedding")
	fitCmd.Flags().String("labels-out", "labels.csv", "Output path for the cluster labels")
	fitCmd.Flags().String("centroids-out", "centroids.csv", "Output path for the cluster centroids")
	fitCmd.Flags().String("transform", "", "Optional CSV of new points to place into the fitted embedding")
	fitCmd.Flags().String("transform-out", "transformed.csv", "Output path for the transformed points")
	fitCmd.Flags().Bool("verbose", false, "Log optimization progress")
	_ = fitCmd.MarkFlagRequired("clusters")
	rootCmd.AddCommand(fitCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFit(cmd *cobra.Command, args []string) error {
	data, err := readMatrix(args[0])
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	cfg := clustermap.DefaultConfig()
	cfg.NClusters, _ = cmd.Flags().GetInt("clusters")
	cfg.NNeighbors, _ = cmd.Flags().GetInt("neighbors")
	cfg.NComponents, _ = cmd.Flags().GetInt("components")
	cfg.Metric, _ = cmd.Flags().GetString("metric")
	cfg.NEpochs, _ = cmd.Flags().GetInt("epochs")
	cfg.MinDist, _ = cmd.Flags().GetFloat64("min-dist")
	cfg.Spread, _ = cmd.Flags().GetFloat64("spread")
	cfg.Init, _ = cmd.Flags().GetString("init")
	cfg.RandomState, _ = cmd.Flags().GetInt64("seed")
	cfg.Workers, _ = cmd.Flags().GetInt("workers")
	cfg.Verbose, _ = cmd.Flags().GetBool("verbose")

	targetPath, _ := cmd.Flags().GetString("target")

	fmt.Printf("Fitting %d points (%d features) into %d components, %d clusters\n",
		len(data), len(data[0]), cfg.NComponents, cfg.NClusters)

	start := time.Now()
	var model *clustermap.Model
	if targetPath != "" {
		target, err := readColumn(targetPath)
		if err != nil {
			return fmt.Errorf("reading target: %w", err)
		}
		model, err = clustermap.FitWithTarget(data, target, cfg)
		if err != nil {
			return err
		}
	} else {
		model, err = clustermap.Fit(data, cfg)
		if err != nil {
			return err
		}
	}
	fmt.Printf("Fit complete in %v (run %s)\n", time.Since(start).Round(time.Millisecond), model.RunID)
	for _, w := range model.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	embOut, _ := cmd.Flags().GetString("embedding-out")
	labelsOut, _ := cmd.Flags().GetString("labels-out")
	centroidsOut, _ := cmd.Flags().GetString("centroids-out")

	if err := writeMatrix(embOut, model.Embedding); err != nil {
		return fmt.Errorf("writing embedding: %w", err)
	}
	if err := writeLabels(labelsOut, model.Labels); err != nil {
		return fmt.Errorf("writing labels: %w", err)
	}
	if err := writeMatrix(centroidsOut, model.Centroids); err != nil {
		return fmt.Errorf("writing centroids: %w", err)
	}
	fmt.Printf("Wrote %s, %s, %s\n", embOut, labelsOut, centroidsOut)

	if transformPath, _ := cmd.Flags().GetString("transform"); transformPath != "" {
		queries, err := readMatrix(transformPath)
		if err != nil {
			return fmt.Errorf("reading transform input: %w", err)
		}
		placed, err := model.Transform(queries)
		if err != nil {
			return err
		}
		transformOut, _ := cmd.Flags().GetString("transform-out")
		if err := writeMatrix(transformOut, placed); err != nil {
			return fmt.Errorf("writing transformed points: %w", err)
		}
		fmt.Printf("Placed %d new points, wrote %s\n", len(placed), transformOut)
	}

	return nil
}

func readMatrix(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, j+1, err)
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}

func readColumn(path string) ([]float64, error) {
	rows, err := readMatrix(path)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, fmt.Errorf("row %d: want a single column, got %d", i+1, len(row))
		}
		out[i] = row[0]
	}
	return out, nil
}

func writeMatrix(path string, m [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rec := []string{}
	for _, row := range m {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeLabels(path string, labels []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, l := range labels {
		if err := w.Write([]string{strconv.Itoa(l)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

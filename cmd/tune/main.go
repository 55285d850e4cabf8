// Package main fits solver settings so that a cheaper solver configuration
// (fewer substeps, parallel projection) reproduces the cloth motion of the
// reference configuration.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/softsim/config"
	"github.com/pthm-cable/softsim/xpbd"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	frames := flag.Int("frames", 240, "Frames per run")
	sampleEvery := flag.Int("sample-every", 10, "Frames between trajectory samples")
	projection := flag.String("projection", "jacobi", "Projection of the tuned solver")
	substeps := flag.Int("substeps", 5, "Substeps of the tuned solver")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	method := flag.String("method", "nelder-mead", "Optimizer: nelder-mead or cmaes")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if _, err := xpbd.ParseProjection(*projection); err != nil {
		log.Fatal(err)
	}
	if *substeps <= 0 {
		log.Fatal("--substeps must be > 0")
	}

	// Create output directory
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	params := NewParamVector()
	dim := params.Dim()

	fmt.Printf("Recording reference runs (%s, %d substeps, %d frames)\n",
		baseCfg.Solver.Projection, baseCfg.Sim.Substeps, *frames)
	evaluator, err := NewFitnessEvaluator(params, baseCfg, *frames, *sampleEvery, *projection, *substeps)
	if err != nil {
		log.Fatalf("failed to build evaluator: %v", err)
	}

	initX := params.Normalize(params.ExtractFromConfig(baseCfg))

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Denormalize(x))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation; each evaluation runs its scenarios in parallel
	}

	var opt optimize.Method
	switch *method {
	case "nelder-mead":
		opt = &optimize.NelderMead{SimplexSize: 0.2}
	case "cmaes":
		popSize := *population
		if popSize == 0 {
			popSize = 4 + int(3.0*float64(dim)/2.0)
		}
		opt = &optimize.CmaEsChol{
			InitStepSize: 0.3,
			Population:   popSize,
		}
	default:
		log.Fatalf("unknown method %q", *method)
	}

	// Open log file
	logPath := filepath.Join(*outputDir, "tune_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()
	headerWritten := false

	// Track evaluations and timing
	evalCount := 0
	bestFitness := failedFitness
	var bestParams []float64
	startTime := time.Now()

	// Wrap the function to log evaluations
	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		fitness := originalFunc(x)
		evalCount++

		// Log clamped values (these are the values actually used)
		clamped := params.Clamp(params.Denormalize(x))
		if fitness < bestFitness {
			bestFitness = fitness
			bestParams = clamped
		}

		elapsed := time.Since(startTime)
		rows := []EvalRecord{NewEvalRecord(evalCount, fitness, clamped, elapsed.Milliseconds())}
		if !headerWritten {
			err = gocsv.Marshal(rows, logFile)
			headerWritten = true
		} else {
			err = gocsv.MarshalWithoutHeaders(rows, logFile)
		}
		if err != nil {
			log.Printf("failed to write log row: %v", err)
		}

		avgPerEval := elapsed / time.Duration(evalCount)
		remaining := time.Duration(*maxEvals-evalCount) * avgPerEval

		fmt.Printf("Eval %d/%d: rms=%.5f worst=%s (best=%.5f) | elapsed: %s, ETA: %s\n",
			evalCount, *maxEvals, fitness, evaluator.LastWorst(), bestFitness,
			formatDuration(elapsed), formatDuration(remaining))

		return fitness
	}

	fmt.Printf("Starting %s with %d parameters, max_evals=%d, scenarios=%v\n",
		*method, dim, *maxEvals, evaluator.Scenarios())

	result, err := optimize.Minimize(problem, initX, settings, opt)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	// Use best params found (may be from any evaluation, not just final)
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluation completed")
	}

	totalTime := time.Since(startTime)
	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best RMS distance: %.5f\n", bestFitness)

	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s (%s): %.6g\n", spec.Name, spec.Path, bestParams[i])
	}

	// Save best config with the tuned solver settings
	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	params.ApplyToConfig(bestCfg, bestParams)
	bestCfg.Solver.Projection = *projection
	bestCfg.Sim.Substeps = *substeps

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}

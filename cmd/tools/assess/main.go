package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"malnutrition-workers/internal/engine/assessment"
	"malnutrition-workers/internal/engine/growth"
	"malnutrition-workers/internal/engine/treatment"
	"malnutrition-workers/internal/engine/zscore"
	"malnutrition-workers/internal/models"
	"malnutrition-workers/internal/workers/nutrition"
	"malnutrition-workers/pkg/registry"
)

func main() {
	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "assess":
		err = runAssess(os.Args[2:], os.Stdin, os.Stdout)
	case "lookup":
		err = runLookup(os.Args[2:], os.Stdout)
	case "coverage":
		err = runCoverage(os.Args[2:], os.Stdout)
	case "registry":
		err = runRegistry(os.Args[2:], os.Stdout)
	case "help":
		help()
	default:
		help()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore loads the official WHO tables from dir, or the bundled tables when dir is empty.
func openStore(dir string) (*growth.Store, error) {
	if dir == "" {
		return growth.Default()
	}
	return growth.LoadWHODir(dir)
}

func runAssess(args []string, stdin io.Reader, out io.Writer) error {
	cmd := flag.NewFlagSet("assess", flag.ExitOnError)
	input := cmd.String("input", "-", "Measurement JSON file, - for stdin")
	threshold := cmd.Float64("review-threshold", 0.6, "Confidence below which review is required")
	refDir := cmd.String("reference-dir", "", "Directory of WHO z-score tables (txt or xlsx)")
	cmd.Parse(args)

	r := stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var m models.MeasurementInput
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return fmt.Errorf("decode measurement: %w", err)
	}

	store, err := openStore(*refDir)
	if err != nil {
		return err
	}
	book, err := treatment.DefaultRuleBook()
	if err != nil {
		return err
	}
	engine := assessment.New(store, book, assessment.WithReviewThreshold(*threshold))
	res, err := engine.Assess(context.Background(), m)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Report())
}

func runLookup(args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("lookup", flag.ExitOnError)
	indicator := cmd.String("indicator", string(growth.WeightForAge), "Reference table")
	sexRaw := cmd.String("sex", "male", "male or female")
	at := cmd.Float64("at", 0, "Axis value: age in months or length/height in cm")
	value := cmd.Float64("value", 0, "Measurement to score; omitted prints the SD curve")
	refDir := cmd.String("reference-dir", "", "Directory of WHO z-score tables (txt or xlsx)")
	cmd.Parse(args)

	sex, ok := models.ParseSex(*sexRaw)
	if !ok {
		return fmt.Errorf("invalid sex %q", *sexRaw)
	}
	ind := growth.Indicator(*indicator)
	if _, ok := ind.Axis(); !ok {
		return fmt.Errorf("unknown indicator %q", *indicator)
	}

	store, err := openStore(*refDir)
	if err != nil {
		return err
	}
	calc := zscore.NewCalculator(store)

	if *value > 0 {
		score, err := calc.Compute(ind, sex, *at, *value)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s at %g: z=%.2f", ind, sex, *at, score.Z)
		if score.Corrected {
			fmt.Fprint(out, " (extreme-value corrected)")
		}
		if score.Implausible {
			fmt.Fprint(out, " (implausible)")
		}
		fmt.Fprintln(out)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "z\tvalue")
	for _, z := range []float64{-3, -2, -1, 0, 1, 2, 3} {
		v, err := calc.ValueAt(ind, sex, *at, z)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%+.0f\t%.2f\n", z, v)
	}
	return w.Flush()
}

func runCoverage(args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("coverage", flag.ExitOnError)
	refDir := cmd.String("reference-dir", "", "Directory of WHO z-score tables (txt or xlsx)")
	cmd.Parse(args)

	store, err := openStore(*refDir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "indicator\tsex\taxis\tfrom\tto\tmax step\tWHO step")
	for _, ind := range growth.Indicators() {
		axis, _ := ind.Axis()
		cov, _ := ind.PublishedCoverage()
		for _, sex := range []models.Sex{models.SexMale, models.SexFemale} {
			lo, hi, ok := store.Range(ind, sex)
			if !ok {
				fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\t-\t%g\n", ind, sex, axis, cov.Step)
				continue
			}
			gap, _ := store.MaxGap(ind, sex)
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%g\t%g\n", ind, sex, axis, lo, hi, gap, cov.Step)
		}
	}
	fmt.Fprintf(w, "\n%d reference points\n", store.Len())
	if err := w.Flush(); err != nil {
		return err
	}

	if err := store.CheckResolution(); err != nil {
		fmt.Fprintf(out, "WARNING: %v\n", err)
		return nil
	}
	fmt.Fprintln(out, "Tables match the WHO grid.")
	return nil
}

func runRegistry(args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("registry", flag.ExitOnError)
	export := cmd.String("export", "", "Write the activity catalog to this path")
	validate := cmd.String("validate", "", "Validate a registry file against the implemented workers")
	cmd.Parse(args)

	catalog := nutrition.Catalog()
	switch {
	case *export != "":
		if err := catalog.Save(*export); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %d activities to %s\n", len(catalog.Activities), *export)
	case *validate != "":
		reg, err := registry.LoadRegistry(*validate)
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		if err := reg.Validate(); err != nil {
			return err
		}
		for _, a := range reg.Activities {
			if _, ok := catalog.Find(a.TaskType); !ok {
				return fmt.Errorf("activity %s: task type %s has no worker", a.ID, a.TaskType)
			}
		}
		fmt.Fprintf(out, "Registry validation passed. Found %d activities.\n", len(reg.Activities))
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}
	return nil
}

func help() {
	fmt.Println(`
Usage: assess <command> [flags]

Commands:
  assess    Run an assessment on a measurement JSON document
  lookup    Score a measurement or print the SD curve of a reference table
  coverage  List the range and spacing of every reference table
  registry  Print, export or validate the activity catalog
  help      Show this help message

Examples:
  assess assess -input child.json
  assess lookup -indicator weight_for_height -sex female -at 80 -value 8.1
  assess lookup -indicator length_for_age -sex male -at 24
  assess coverage -reference-dir /opt/who
  assess registry -export configs/activity-registry.json

Use 'assess <command> -h' for more information about a command.`)
}

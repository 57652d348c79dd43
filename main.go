package main

import (
	"context"
	"log"
	"path/filepath"

	"github.com/joho/godotenv"

	"vbcaudit/adapters/excel"
	"vbcaudit/adapters/reference"
	"vbcaudit/ai"
	"vbcaudit/domain/refdata"
	"vbcaudit/domain/tabular"
	"vbcaudit/internal"
	"vbcaudit/internal/config"
	"vbcaudit/internal/diagnosis"
	"vbcaudit/internal/profiling"
	"vbcaudit/internal/validation"
	"vbcaudit/reporting"
)

// datasetFiles maps a contract's specialty to its submission files.
var datasetFiles = map[string][]string{
	refdata.SpecialtyMSK:      {validation.DatasetMSKEpisodes, validation.DatasetMSKQuality},
	refdata.SpecialtyOncology: {validation.DatasetONCEpisodes, validation.DatasetONCQuality, validation.DatasetONCDrugDetail},
}

func main() {
	// Optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatalf("[Main] run failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := internal.DefaultLogger

	contracts, err := reference.LoadContracts(cfg.Data.ContractsFile)
	if err != nil {
		return err
	}
	ranges, err := reference.LoadRanges(cfg.Data.ReferenceFile)
	if err != nil {
		return err
	}
	logger.Info("[Main] loaded %d contracts from %s", len(contracts), cfg.Data.ContractsFile)

	var inputs []validation.ContractInput
	profiles := make(map[string][]profiling.ColumnProfile)
	for _, contract := range contracts {
		in := validation.ContractInput{Contract: contract}
		rs, ok := reference.RangesFor(ranges, contract.Specialty)
		if !ok {
			logger.Warn("[Main] no reference ranges for specialty %s; range checks will report a configuration gap", contract.Specialty)
		}
		in.Ranges = rs

		for _, dataset := range datasetFiles[contract.Specialty] {
			table, err := loadDataset(cfg.Data.Dir, dataset)
			if err != nil {
				// Missing datasets surface as schema-stage gaps, not a
				// hard stop; the contract is still validated on what it
				// did submit.
				logger.Warn("[Main] dataset %s unavailable: %v", dataset, err)
				continue
			}
			switch dataset {
			case validation.DatasetMSKEpisodes, validation.DatasetONCEpisodes:
				in.Episodes = table
				profiles[contract.ID] = append(profiles[contract.ID], profiling.ProfileTable(table, episodeSchema(contract.Specialty))...)
			case validation.DatasetMSKQuality, validation.DatasetONCQuality:
				in.Quality = table
			case validation.DatasetONCDrugDetail:
				in.Drugs = table
			}
		}
		inputs = append(inputs, in)
	}

	pipeline := validation.NewPipeline(logger)
	result := pipeline.Run(inputs)
	logger.Info("[Main] validation complete: %d RED, %d YELLOW, %d GREEN",
		result.Tally.Red, result.Tally.Yellow, result.Tally.Green)

	narrator := ai.NewNarrator(cfg.AI)
	coordinator := diagnosis.NewCoordinator(narrator, cfg.AI.MaxConcurrent, logger)
	diag := coordinator.Enrich(context.Background(), result)

	renderer := reporting.NewRenderer(logger)
	return renderer.Render(result, diag, profiles, cfg.Report.OutputPath)
}

func loadDataset(dir, dataset string) (*tabular.Table, error) {
	reader := excel.NewDataReader(filepath.Join(dir, dataset+".csv"))
	return reader.ReadTable(dataset)
}

func episodeSchema(specialty string) tabular.Schema {
	if specialty == refdata.SpecialtyOncology {
		return validation.ONCEpisodesSchema
	}
	return validation.MSKEpisodesSchema
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tzavrishon/mivhan/internal/config"
	"github.com/tzavrishon/mivhan/internal/database"
	"github.com/tzavrishon/mivhan/internal/logger"
	"github.com/tzavrishon/mivhan/internal/model"
	"github.com/tzavrishon/mivhan/internal/repository"
	"github.com/tzavrishon/mivhan/internal/validator"
)

// questionFile is the layout of a seed file:
//
//	[[question]]
//	kind = "VERBAL_ANALOGY"
//	prompt = "..."
//	  [[question.option]]
//	  text = "..."
//	  correct = true
type questionFile struct {
	Questions []model.ImportQuestion `toml:"question"`
}

func main() {
	var dryRun bool
	flag.BoolVar(&dryRun, "dry-run", false, "Validate the files without writing to the database")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Println("Usage: seed-questions [-dry-run] <file.toml>...")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	validator.Setup()

	// ─── Parse and validate every file first ───────────────────────────
	var questions []*model.Question
	failed := 0
	for _, path := range files {
		var f questionFile
		if _, err := toml.DecodeFile(path, &f); err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to parse seed file")
		}
		for i, iq := range f.Questions {
			if fields := validator.Struct(iq); fields != nil {
				fmt.Printf("%s: question %d: %v\n", path, i+1, fields)
				failed++
				continue
			}
			q, err := iq.ToQuestion()
			if err != nil {
				fmt.Printf("%s: question %d: %v\n", path, i+1, err)
				failed++
				continue
			}
			questions = append(questions, q)
		}
	}
	if failed > 0 {
		fmt.Printf("\n%d invalid question(s); nothing was written.\n", failed)
		os.Exit(1)
	}

	counts := make(map[model.SectionKind]int)
	for _, q := range questions {
		counts[q.Kind]++
	}
	for _, kind := range model.SectionOrder {
		fmt.Printf("%-24s %d\n", kind, counts[kind])
	}
	if dryRun {
		fmt.Printf("\nDry run: %d question(s) valid.\n", len(questions))
		return
	}

	// ─── Insert ────────────────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	questionRepo := repository.NewQuestionRepository(pool)

	created := 0
	for _, q := range questions {
		if err := questionRepo.Create(ctx, q); err != nil {
			log.Error().Err(err).Str("kind", string(q.Kind)).Msg("Failed to create question")
			continue
		}
		created++
		if created%50 == 0 {
			fmt.Printf("Created %d questions...\n", created)
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d questions.\n", created, len(questions))
}

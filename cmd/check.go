/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/perevir/internal"
	"github.com/valpere/perevir/internal/checker"
	"github.com/valpere/perevir/internal/checkpoint"
	"github.com/valpere/perevir/internal/dataset"
	"github.com/valpere/perevir/internal/detector"
	"github.com/valpere/perevir/internal/history"
	"github.com/valpere/perevir/internal/llm"
	"github.com/valpere/perevir/internal/prompts"
	"github.com/valpere/perevir/internal/report"
)

var (
	checkInput    string
	checkOutput   string
	checkAnnotate string

	checkProvider   string
	checkBaseURL    string
	checkAPIKey     string
	checkModel      string
	checkTimeout    time.Duration
	checkMaxRetries int

	checkPrompt           string
	checkSystemPromptFile string
	checkUserPromptFile   string

	checkInterval      time.Duration
	checkBatchSize     int
	checkResume        bool
	checkCheckpointDir string

	checkDBPath      string
	checkNoHistory   bool
	checkNoLangCheck bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check translation quality of an Excel or CSV file",
	Long: `Score every row of a two-column file (source text, translation) with an
LLM judge and write a styled Excel report.

The connection can be configured with a preset provider (openai, deepseek,
qwen, moonshot, glm) or an explicit --base-url. The API key can also come
from the PEREVIR_API_KEY environment variable or the config file.

Progress is checkpointed after every row. An interrupted job (Ctrl-C or a
crash) can be picked up with --resume.

Example:
  perevir check -i data.xlsx --provider deepseek --api-key sk-...
  perevir check -i data.xlsx --provider deepseek --resume`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConnection()
		if err != nil {
			return err
		}

		tpl, err := resolvePrompt()
		if err != nil {
			return err
		}

		entries, err := dataset.ReadFile(checkInput)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("no data rows found in %s", checkInput)
		}
		fmt.Fprintf(os.Stderr, "Loaded %d rows from %s\n", len(entries), checkInput)

		if !checkNoLangCheck {
			warnColumnLanguages(entries)
		}

		store, err := checkpoint.NewStore(checkCheckpointDir)
		if err != nil {
			return err
		}

		client := llm.New(cfg)
		chk := checker.New(client, store, checker.Callbacks{
			OnProgress: func(processed, total int, item internal.ProcessedItem) {
				fmt.Fprintf(os.Stderr, "[%d/%d] row %d: score %d\n", processed, total, item.Row, item.Result.Score)
			},
			OnLog: func(msg string) {
				fmt.Fprintln(os.Stderr, msg)
			},
		})

		started := time.Now()
		job := checker.Job{
			Entries:         entries,
			JobID:           dataset.JobID(checkInput),
			Prompt:          tpl,
			Resume:          checkResume,
			RequestInterval: viper.GetDuration("interval"),
			BatchSize:       viper.GetInt("batch-size"),
		}
		if !chk.Start(job) {
			return fmt.Errorf("a job is already running")
		}

		// First Ctrl-C stops cleanly at the next row boundary; a second one
		// aborts outright.
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "Interrupt received, finishing current row...")
			chk.Stop()
			<-sigCh
			os.Exit(1)
		}()

		<-chk.Done()

		switch chk.State() {
		case checker.StateCompleted:
			return finishRun(cfg, job, chk.Results(), started)
		case checker.StateIdle:
			fmt.Fprintf(os.Stderr, "Job stopped. Resume with:\n  perevir check -i %s --resume\n", checkInput)
			return nil
		default:
			return fmt.Errorf("check failed, see log above")
		}
	},
}

// resolveConnection merges the provider preset, flags, config file and
// environment into one client config.
func resolveConnection() (llm.Config, error) {
	baseURL := flagOr(checkBaseURL, "base-url")
	model := flagOr(checkModel, "model")
	apiKey := flagOr(checkAPIKey, "api-key")
	providerName := flagOr(checkProvider, "provider")

	if providerName != "" {
		provider, ok := llm.Providers[providerName]
		if !ok {
			names := make([]string, 0, len(llm.Providers))
			for name := range llm.Providers {
				names = append(names, name)
			}
			return llm.Config{}, fmt.Errorf("unknown provider %q (available: %s)", providerName, strings.Join(names, ", "))
		}
		if baseURL == "" {
			baseURL = provider.BaseURL
		}
		if model == "" {
			model = provider.DefaultModel
		}
	}

	if baseURL == "" {
		return llm.Config{}, fmt.Errorf("no endpoint configured: set --provider or --base-url")
	}
	if model == "" {
		return llm.Config{}, fmt.Errorf("no model configured: set --model")
	}
	if apiKey == "" {
		return llm.Config{}, fmt.Errorf("no API key configured: set --api-key or PEREVIR_API_KEY")
	}

	return llm.Config{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		Timeout:    checkTimeout,
		MaxRetries: checkMaxRetries,
	}, nil
}

// flagOr returns the flag value when set, otherwise the config/env value
// registered under key.
func flagOr(flagValue, key string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(key)
}

// resolvePrompt picks a builtin template or loads a custom one from files.
func resolvePrompt() (prompts.Template, error) {
	if checkSystemPromptFile != "" || checkUserPromptFile != "" {
		if checkSystemPromptFile == "" || checkUserPromptFile == "" {
			return prompts.Template{}, fmt.Errorf("--system-prompt-file and --user-prompt-file must be set together")
		}
		system, err := os.ReadFile(checkSystemPromptFile)
		if err != nil {
			return prompts.Template{}, fmt.Errorf("failed to read system prompt: %w", err)
		}
		user, err := os.ReadFile(checkUserPromptFile)
		if err != nil {
			return prompts.Template{}, fmt.Errorf("failed to read user prompt: %w", err)
		}
		return prompts.Template{
			Name:   "custom",
			System: string(system),
			User:   string(user),
		}, nil
	}

	tpl, ok := prompts.Get(checkPrompt)
	if !ok {
		return prompts.Template{}, fmt.Errorf("unknown prompt %q (available: %s)", checkPrompt, strings.Join(prompts.Names(), ", "))
	}
	return tpl, nil
}

// warnColumnLanguages samples both columns and flags files whose source and
// target look like the same language, usually a sign of swapped or
// duplicated columns.
func warnColumnLanguages(entries []internal.Entry) {
	sources := make([]string, 0, len(entries))
	targets := make([]string, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, e.Source)
		targets = append(targets, e.Target)
	}

	det := detector.New()
	srcLang, srcOK := det.SampleISO(sources, 10)
	tgtLang, tgtOK := det.SampleISO(targets, 10)
	if !srcOK || !tgtOK {
		return
	}

	fmt.Fprintf(os.Stderr, "Detected languages: source=%s target=%s\n", srcLang, tgtLang)
	if srcLang == tgtLang {
		fmt.Fprintln(os.Stderr, "Warning: both columns look like the same language; check the column order")
	}
}

// finishRun writes the report, optionally annotates the input workbook, and
// records the run in the history database.
func finishRun(cfg llm.Config, job checker.Job, results []internal.ProcessedItem, started time.Time) error {
	output := checkOutput
	if output == "" {
		stem := strings.TrimSuffix(checkInput, filepath.Ext(checkInput))
		output = stem + "_report.xlsx"
	}
	if err := report.WriteReport(output, results); err != nil {
		return err
	}
	fmt.Printf("Report written: %s\n", output)

	if checkAnnotate != "" {
		if err := report.Annotate(checkInput, checkAnnotate, results); err != nil {
			return err
		}
		fmt.Printf("Annotated workbook written: %s\n", checkAnnotate)
	}

	if !checkNoHistory {
		db, err := history.New(viper.GetString("db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open history database: %v\n", err)
			return nil
		}
		defer db.Close()

		runID, err := db.RecordRun(context.Background(), history.Run{
			JobID:         job.JobID,
			InputFile:     checkInput,
			Model:         cfg.Model,
			PromptName:    job.Prompt.Name,
			RowsTotal:     len(job.Entries),
			RowsProcessed: len(results),
			StartedAt:     started,
			FinishedAt:    time.Now(),
		}, results)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record run: %v\n", err)
			return nil
		}
		fmt.Fprintf(os.Stderr, "Run recorded: %s\n", runID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&checkInput, "input", "i", "", "Input Excel or CSV file (required)")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "", "Report file (default <input>_report.xlsx)")
	checkCmd.Flags().StringVar(&checkAnnotate, "annotate", "", "Also write a copy of the input workbook with result columns appended")

	checkCmd.Flags().StringVar(&checkProvider, "provider", "", "Preset provider: openai, deepseek, qwen, moonshot, glm")
	checkCmd.Flags().StringVar(&checkBaseURL, "base-url", "", "API base URL (overrides the provider preset)")
	checkCmd.Flags().StringVar(&checkAPIKey, "api-key", "", "API key")
	checkCmd.Flags().StringVar(&checkModel, "model", "", "Model name (default from the provider preset)")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 60*time.Second, "Per-request timeout")
	checkCmd.Flags().IntVar(&checkMaxRetries, "max-retries", 3, "Retry budget per request (rate limits have their own budget)")

	checkCmd.Flags().StringVar(&checkPrompt, "prompt", "comprehensive", "Builtin prompt template (see 'perevir prompts')")
	checkCmd.Flags().StringVar(&checkSystemPromptFile, "system-prompt-file", "", "Custom system prompt file")
	checkCmd.Flags().StringVar(&checkUserPromptFile, "user-prompt-file", "", "Custom user prompt file with {source_text} and {target_text} tokens")

	checkCmd.Flags().DurationVar(&checkInterval, "interval", time.Second, "Pause between API calls")
	checkCmd.Flags().IntVar(&checkBatchSize, "batch-size", 1, "Rows per API call; falls back to per-row calls when a batch response is rejected")
	checkCmd.Flags().BoolVar(&checkResume, "resume", false, "Resume from the last checkpoint for this input file")
	checkCmd.Flags().StringVar(&checkCheckpointDir, "checkpoint-dir", "./checkpoints", "Checkpoint directory")

	checkCmd.Flags().StringVar(&checkDBPath, "db", "./data/perevir.db", "History database path")
	checkCmd.Flags().BoolVar(&checkNoHistory, "no-history", false, "Do not record the run in the history database")
	checkCmd.Flags().BoolVar(&checkNoLangCheck, "no-lang-check", false, "Skip the column language sanity check")

	checkCmd.MarkFlagRequired("input")

	viper.BindPFlag("provider", checkCmd.Flags().Lookup("provider"))
	viper.BindPFlag("base-url", checkCmd.Flags().Lookup("base-url"))
	viper.BindPFlag("api-key", checkCmd.Flags().Lookup("api-key"))
	viper.BindPFlag("model", checkCmd.Flags().Lookup("model"))
	viper.BindPFlag("db", checkCmd.Flags().Lookup("db"))
	viper.BindPFlag("interval", checkCmd.Flags().Lookup("interval"))
	viper.BindPFlag("batch-size", checkCmd.Flags().Lookup("batch-size"))
}

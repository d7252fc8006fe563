package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pario-ai/deckgen/pkg/anki"
	"github.com/pario-ai/deckgen/pkg/audit"
	"github.com/pario-ai/deckgen/pkg/budget"
	"github.com/pario-ai/deckgen/pkg/cardfmt"
	"github.com/pario-ai/deckgen/pkg/config"
	"github.com/pario-ai/deckgen/pkg/content"
	"github.com/pario-ai/deckgen/pkg/export"
	"github.com/pario-ai/deckgen/pkg/llm"
	"github.com/pario-ai/deckgen/pkg/llm/gemini"
	"github.com/pario-ai/deckgen/pkg/models"
	"github.com/pario-ai/deckgen/pkg/pipeline"
	"github.com/pario-ai/deckgen/pkg/router"
	"github.com/pario-ai/deckgen/pkg/store"
)

type generateFlags struct {
	configPath string
	model      string
	text       string
	textFile   string
	name       string
	focus      string
	review     bool
	set        string
	format     string
	out        string
	sync       bool
}

func newGenerateCmd() *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate [files...]",
		Short: "Generate flashcards from documents or pasted text",
		Long: `Generate builds an outline of the input, extracts one generation command per
outline leaf and generates cards for each. With --review the extracted
sections are listed and read back from stdin as a selection such as "all" or
"1,3-5" before generation starts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, f, cmd.Flags().Changed("review"))
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "model or route name (default from config)")
	cmd.Flags().StringVar(&f.text, "text", "", "pasted text to use as input")
	cmd.Flags().StringVar(&f.textFile, "text-file", "", "read pasted text from a file, - for stdin")
	cmd.Flags().StringVar(&f.name, "name", "", "document name used in prompts")
	cmd.Flags().StringVar(&f.focus, "focus", "", "restrict the outline to this topic")
	cmd.Flags().BoolVar(&f.review, "review", false, "review extracted sections before generating")
	cmd.Flags().StringVar(&f.set, "set", "", "card set name to save under (default: document name)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "csv", "export format: csv, md, json or tsv")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write cards to this file, - for stdout")
	cmd.Flags().BoolVar(&f.sync, "sync", false, "sync generated cards to Anki")

	return cmd
}

func runGenerate(cmd *cobra.Command, files []string, f generateFlags, reviewSet bool) error {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	if reviewSet {
		cfg.Pipeline.Review = f.review
	}
	format, err := export.ParseFormat(f.format)
	if err != nil {
		return err
	}

	if cfg.Pipeline.Review && f.textFile == "-" {
		return errors.New("--review reads the selection from stdin and cannot be combined with --text-file -")
	}
	src := content.Source{Text: f.text, Files: files, Name: f.name}
	if f.textFile != "" {
		text, err := readTextFile(cmd.InOrStdin(), f.textFile)
		if err != nil {
			return err
		}
		src.Text = strings.TrimSpace(src.Text + "\n" + text)
	}

	model := f.model
	if model == "" {
		model = cfg.Model
	}
	chain, err := router.New(cfg).Resolve(model)
	if err != nil {
		return err
	}

	prompts, err := loadPrompts(cfg.Pipeline)
	if err != nil {
		return err
	}

	tr, closeTracker, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer closeTracker()

	if err := budget.New(cfg.Budgets, tr).Check(cmd.Context(), chain.Primary()); err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gw, closeGateway, err := newGateway(cfg, chain)
	if err != nil {
		return err
	}
	defer closeGateway()

	orch := pipeline.New(gw, pipeline.Options{
		APIKey:        cfg.APIKey,
		Prompts:       prompts,
		Review:        cfg.Pipeline.Review,
		RequestDelay:  cfg.Pipeline.RequestDelay,
		RetryDelay:    cfg.Pipeline.RetryDelay,
		HistoryWindow: cfg.Pipeline.HistoryWindow,
	})
	orch.Subscribe(func(ev models.Event) {
		if err := tr.LogEvent(context.Background(), ev); err != nil {
			log.Warn().Err(err).Msg("record event failed")
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := pipeline.Request{Source: src, Focus: f.focus}
	res, runErr := orch.Run(ctx, req)
	if res != nil && res.Phase == pipeline.PhaseReviewing {
		res, runErr = reviewSections(ctx, cmd, orch, res)
	}
	if res == nil {
		return runErr
	}

	run := runRecord(res, chain.Primary(), f.focus)
	if err := tr.RecordRun(context.Background(), run); err != nil {
		log.Warn().Err(err).Msg("record run failed")
	}

	if len(res.Chunks) > 0 {
		name := f.set
		if name == "" {
			name = res.Document
		}
		if _, err := saveCardSet(st, name, res.RunID, res.Chunks); err != nil {
			return err
		}
	}

	printSummary(cmd.ErrOrStderr(), res)

	if f.out != "" && len(res.Chunks) > 0 {
		if err := writeExport(cmd.OutOrStdout(), f.out, format, res.Chunks); err != nil {
			return err
		}
	}

	if f.sync && len(res.Chunks) > 0 && runErr == nil {
		if err := syncRecords(ctx, cmd.ErrOrStderr(), cfg, res.Records()); err != nil {
			return err
		}
	}

	return runErr
}

// newGateway wires the Gemini backend, the model chain and, when enabled,
// the call audit log into an LLM gateway.
func newGateway(cfg *config.Config, chain router.Chain) (*llm.Gateway, func(), error) {
	opts := llm.Options{
		Model:         chain.Primary(),
		FallbackModel: chain.Fallback(),
		CacheTTL:      cfg.Cache.TTL,
		Retry: llm.RetryPolicy{
			MaxAttempts:      cfg.Retry.MaxAttempts,
			InitialDelay:     cfg.Retry.InitialDelay,
			MaxDelay:         cfg.Retry.MaxDelay,
			BackoffFactor:    cfg.Retry.BackoffFactor,
			FallbackAttempts: cfg.Retry.FallbackAttempts,
		},
	}

	cleanup := func() {}
	if cfg.Audit.Enabled {
		l, err := audit.New(cfg.Audit)
		if err != nil {
			return nil, nil, fmt.Errorf("init audit log: %w", err)
		}
		opts.Calls = l
		cleanup = func() { _ = l.Close() }
	}

	backend := gemini.New(cfg.BaseURL, cfg.APIKey, nil)
	return llm.New(backend, opts), cleanup, nil
}

// reviewSections lists the extracted sections and reads a selection from stdin until
// it is valid. EOF or an explicit "none" discards the run.
func reviewSections(ctx context.Context, cmd *cobra.Command, orch *pipeline.Orchestrator, res *pipeline.Result) (*pipeline.Result, error) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "\n%d section(s) found in %s:\n", len(res.Commands), res.Document)
	for i, c := range res.Commands {
		fmt.Fprintf(out, "  %3d. %s\n", i+1, c)
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\nSections to generate (all, 1,3-5, none): ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return res, orch.Discard(ctx)
		}
		answer := strings.TrimSpace(in.Text())
		if strings.EqualFold(answer, "none") {
			return res, orch.Discard(ctx)
		}
		sel, err := pipeline.ParseSelection(answer, len(res.Commands))
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
			continue
		}
		return orch.Confirm(ctx, sel)
	}
}

func runRecord(res *pipeline.Result, model, focus string) models.RunRecord {
	return models.RunRecord{
		ID:             res.RunID,
		Document:       res.Document,
		Focus:          focus,
		Model:          model,
		Phase:          string(res.Phase),
		Error:          res.Error,
		Commands:       len(res.Commands),
		Selected:       len(res.Selected),
		TotalCards:     res.Stats.TotalCards,
		BlockedChunks:  res.Stats.Blocked,
		RetriedChunks:  res.Stats.Retried,
		DurationMs:     res.Stats.Duration.Milliseconds(),
		CardsPerMinute: res.Stats.CardsPerMinute,
		Usage:          res.Usage,
	}
}

func printSummary(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "\nRun %s: %s\n", res.RunID, res.Phase)
	if res.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", res.Error)
	}
	if res.Phase == pipeline.PhaseIdle {
		return
	}
	s := res.Stats
	fmt.Fprintf(w, "Cards:     %d from %d chunk(s)\n", s.TotalCards, s.Chunks)
	fmt.Fprintf(w, "Retried:   %d\nBlocked:   %d\n", s.Retried, s.Blocked)
	fmt.Fprintf(w, "Duration:  %s (%d cards/min)\n", s.DurationText, s.CardsPerMinute)
	fmt.Fprintf(w, "Tokens:    %d in / %d out / %d cached\n", res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.CachedTokens)
}

// saveCardSet persists chunks under name and reports whether the store
// limits dropped older chunks.
func saveCardSet(st *store.Store, name, runID string, chunks []string) (bool, error) {
	info, err := st.SaveChunks(name, runID, chunks)
	if err != nil {
		return false, err
	}
	log.Info().Str("set", info.Name).Int("chunks", info.Chunks).Int64("bytes", info.Bytes).Msg("card set saved")
	truncated := info.Chunks < len(chunks)
	if truncated {
		log.Warn().Str("set", info.Name).Int("kept", info.Chunks).Int("generated", len(chunks)).
			Msg("card set exceeded the store limits, older chunks were dropped")
	}
	return truncated, nil
}

func readTextFile(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// writeExport writes chunks to path, or to stdout when path is "-".
func writeExport(stdout io.Writer, path string, format export.Format, chunks []string) error {
	if path == "-" {
		return export.Write(stdout, format, chunks)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.Write(f, format, chunks); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("path", path).Str("format", string(format)).Msg("cards exported")
	return nil
}

func syncRecords(ctx context.Context, w io.Writer, cfg *config.Config, records []cardfmt.Record) error {
	client := anki.New(anki.Options{
		URL:      cfg.Anki.URL,
		Deck:     cfg.Anki.Deck,
		NoteType: cfg.Anki.NoteType,
		Tags:     cfg.Anki.Tags,
		Delay:    cfg.Anki.Delay,
	}, nil)
	if err := client.EnsureDeck(ctx); err != nil {
		return err
	}
	res, err := client.Sync(ctx, records)
	fmt.Fprintf(w, "Synced %d card(s) to Anki deck %q (%d duplicate(s) skipped)\n", res.Added, client.Deck(), res.Duplicates)
	return err
}

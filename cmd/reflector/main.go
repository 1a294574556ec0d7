package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/reflector/internal/archive"
	"github.com/pavelanni/reflector/internal/catalog"
	"github.com/pavelanni/reflector/internal/export"
	"github.com/pavelanni/reflector/internal/handler"
	appI18n "github.com/pavelanni/reflector/internal/i18n"
	"github.com/pavelanni/reflector/internal/llm"
	"github.com/pavelanni/reflector/internal/model"
	"github.com/pavelanni/reflector/internal/retry"
	"github.com/pavelanni/reflector/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reflector",
		Short: "Self-regulated learning reflection assistant",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), archivesCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `reflector --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(f *pflag.FlagSet) {
	f.String("db", "reflector.db", "SQLite database path")
	f.String("prompts", "", "Prompt catalog JSON file (empty = bundled catalog)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addCommonFlags(f)
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("llm-key", "", "API key for LLM (empty = canned feedback only)")
	f.String("llm-model", llm.DefaultModel, "LLM model name")
	f.Duration("llm-timeout", 20*time.Second, "Timeout for one coach message, retries included")
	f.StringP("lang", "l", "en", "Language for coach messages and errors (en, ru)")
	f.Uint("retry-attempts", 3, "Attempts for LLM calls and archive writes")
	f.Duration("retry-delay", 200*time.Millisecond, "Initial delay between retries")
	f.Duration("cache-ttl", 10*time.Minute, "How long archives stay cached in memory")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one stored session without archiving it",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("session", "", "Session ID (required)")
	f.StringP("format", "f", string(export.FormatJSON), "Output format (json, csv, report, xlsx, pdf)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(f)

	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func archivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List archived exports",
		RunE:  runArchives,
	}
	f := cmd.Flags()
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	addCommonFlags(f)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("REFLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("reflector")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/reflector")
	v.AddConfigPath("/etc/reflector")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openBackends(v *viper.Viper) (*store.Store, *catalog.Catalog, error) {
	cat, err := catalog.Load(v.GetString("prompts"))
	if err != nil {
		return nil, nil, fmt.Errorf("load prompt catalog: %w", err)
	}
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, cat, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, cat, err := openBackends(v)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("prompt catalog loaded", "prompts", cat.Len(), "weeks", len(cat.Weeks()))

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServeConfig{
		Lang:          lang,
		LLMTimeout:    v.GetDuration("llm-timeout"),
		RetryAttempts: v.GetUint("retry-attempts"),
		RetryDelay:    v.GetDuration("retry-delay"),
	}

	// Without a key every coach message is the localized fallback.
	var coach handler.Generator
	if key := v.GetString("llm-key"); key != "" {
		coach = llm.New(v.GetString("llm-url"), key, v.GetString("llm-model"), lang)
	} else {
		slog.Warn("no LLM key configured, coach replies use canned feedback")
	}

	rc := retry.Default()
	rc.Attempts = cfg.RetryAttempts
	rc.Delay = cfg.RetryDelay
	archives := archive.New(db, cat, rc, v.GetDuration("cache-ttl"))

	h := handler.New(db, cat, archives, coach, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"retry_attempts", cfg.RetryAttempts,
		"llm_timeout", cfg.LLMTimeout,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	f, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}

	db, cat, err := openBackends(v)
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := db.GetSession(v.GetString("session"))
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	rec, err := export.Transform(sess, cat)
	if err != nil {
		return fmt.Errorf("transform session %s: %w", sess.ID, err)
	}
	data, err := export.Render(rec, f, time.Now())
	if err != nil {
		return fmt.Errorf("render %s: %w", f, err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		file, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("session exported", "session", sess.ID, "format", f, "responses", len(rec.Responses))
	return nil
}

func runArchives(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, cat, err := openBackends(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))

	svc := archive.New(db, cat, retry.Default(), 0)
	list, err := svc.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tUSER\tSESSION\tRESPONSES")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Date, a.UserID, a.SessionID, appI18n.Tp(ctx, "ResponsesCount", a.Responses))
	}
	return tw.Flush()
}

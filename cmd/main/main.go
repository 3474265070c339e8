package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/CTAG07/Drosera/pkg/fcm"
	"github.com/CTAG07/Drosera/pkg/modelstore"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const usage = `Usage: drosera <command> [flags]

Commands:
  train     learn a text file into a named model
  generate  sample symbols from a named model
  entropy   measure information content of a text under a model
  export    write a stored model to a standalone document file
  import    read a document file into the catalog
  list      list the stored models
  drop      delete a stored model
  version   print build information

Run 'drosera <command> -h' for command flags.`

func main() {
	if err := run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Println(usage)
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "train":
		return cmdTrain(rest)
	case "generate":
		return cmdGenerate(rest)
	case "entropy":
		return cmdEntropy(rest)
	case "export":
		return cmdExport(rest)
	case "import":
		return cmdImport(rest)
	case "list":
		return cmdList(rest)
	case "drop":
		return cmdDrop(rest)
	case "version":
		fmt.Printf("drosera %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return nil
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// env bundles the pieces every subcommand needs: parsed config, logger,
// database handle and the model catalog on top of it.
type env struct {
	config *Config
	logger *slog.Logger
	db     *sql.DB
	store  *modelstore.Store
}

func setupEnv(configPath string) (*env, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(config.LogLevel)

	if err = os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := initDB(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = modelstore.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup catalog schema: %w", err)
	}

	store, err := modelstore.New(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open model catalog: %w", err)
	}
	store.SetLogger(logger)

	return &env{config: config, logger: logger, db: db, store: store}, nil
}

func (e *env) close() {
	e.store.Close()
	if err := e.db.Close(); err != nil {
		e.logger.Error("Failed to close database", "error", err)
	}
}

// newModel builds a fresh model from the configured parameters.
func (e *env) newModel() (*fcm.Model, error) {
	mc := e.config.Model
	var opts []fcm.Option
	if mc.Recursive {
		opts = append(opts, fcm.WithBackoff())
	}
	if mc.Seed != 0 {
		opts = append(opts, fcm.WithRand(rand.New(rand.NewPCG(mc.Seed, mc.Seed))))
	}
	m, err := fcm.New(mc.Order, mc.Alpha, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid model configuration: %w", err)
	}
	m.SetLogger(e.logger)
	return m, nil
}

// readInput returns the contents of path, or of stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func cmdTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "./config.json", "path to the config file")
	name := fs.String("name", "default", "model name in the catalog")
	in := fs.String("in", "-", "training text file, or - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setupEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := context.Background()

	data, err := readInput(*in)
	if err != nil {
		return fmt.Errorf("failed to read training input: %w", err)
	}

	m, err := e.store.Load(ctx, *name)
	switch {
	case errors.Is(err, modelstore.ErrNotFound):
		if m, err = e.newModel(); err != nil {
			return err
		}
		e.logger.Info("Created new model", "model_name", *name, "order", m.K())
	case err != nil:
		return err
	default:
		// Stored models arrive locked; unlock to resume training.
		m.Unlock()
		m.SetLogger(e.logger)
	}

	m.Learn(string(data))
	if err = e.store.Save(ctx, *name, m, e.config.Model.Binary); err != nil {
		return err
	}

	stats := m.Stats()
	fmt.Printf("trained %q: order=%d alphabet=%d contexts=%d transitions=%d\n",
		*name, stats.K, stats.AlphabetSize, stats.Contexts, stats.Transitions)
	return nil
}

func cmdGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "./config.json", "path to the config file")
	name := fs.String("name", "default", "model name in the catalog")
	prior := fs.String("prior", "", "seed text preceding the generated symbols")
	n := fs.Int("n", 100, "number of symbols to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setupEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	m, err := e.store.Load(context.Background(), *name)
	if err != nil {
		return err
	}
	m.SetLogger(e.logger)
	if seed := e.config.Model.Seed; seed != 0 {
		m.SetRand(rand.New(rand.NewPCG(seed, seed)))
	}

	fmt.Println(m.Predict(*prior, *n))
	return nil
}

func cmdEntropy(args []string) error {
	fs := flag.NewFlagSet("entropy", flag.ExitOnError)
	configPath := fs.String("config", "./config.json", "path to the config file")
	name := fs.String("name", "default", "model name in the catalog")
	in := fs.String("in", "-", "text file to measure, or - for stdin")
	out := fs.String("out", "", "optional CSV file for per-symbol information")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setupEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	m, err := e.store.Load(context.Background(), *name)
	if err != nil {
		return err
	}
	m.SetLogger(e.logger)

	data, err := readInput(*in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	text := string(data)

	fmt.Printf("average information content: %.6f bits/symbol\n", m.AverageInformationContent(text))
	if *out != "" {
		if err = m.ExportSymbolInformation(text, *out); err != nil {
			return fmt.Errorf("failed to write symbol information: %w", err)
		}
		fmt.Printf("per-symbol information written to %s\n", *out)
	}
	return nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "./config.json", "path to the config file")
	name := fs.String("name", "default", "model name in the catalog")
	out := fs.String("out", "", "output document path (required)")
	binary := fs.Bool("binary", false, "write the binary document format")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("export requires -out")
	}

	e, err := setupEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	m, err := e.store.Load(context.Background(), *name)
	if err != nil {
		return err
	}
	m.SetLogger(e.logger)

	path, err := m.Export(*out, *binary)
	if err != nil {
		return fmt.Errorf("failed to export model: %w", err)
	}
	fmt.Printf("model %q written to %s\n", *name, path)
	return nil
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "./config.json", "path to the config file")
	name := fs.String("name", "default", "model name to store under")
	in := fs.String("in", "", "input document path (required)")
	binary := fs.Bool("binary", false, "read the binary document format")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("import requires -in")
	}

	e, err := setupEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	// The document carries order and alpha; the configured variant decides
	// which table layout to expect.
	m, err := e.newModel()
	if err != nil {
		return err
	}
	if err = m.Import(*in, *binary); err != nil {
		return fmt.Errorf("failed to import model: %w", err)
	}

	if err = e.store.Save(context.Background(), *name, m, e.config.Model.Binary); err != nil {
		return err
	}
	fmt.Printf("imported %s as %q (order=%d, alphabet=%d)\n", filepath.Base(*in), *name, m.K(), m.AlphabetSize())
	return nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "./config.json", "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setupEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	entries, err := e.store.List(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no models stored")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tORDER\tALPHA\tVARIANT\tFORMAT\tBYTES\tUPDATED")
	for _, entry := range entries {
		variant := "fixed"
		if entry.Recursive {
			variant = "backoff"
		}
		format := "json"
		if entry.Binary {
			format = "binary"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%g\t%s\t%s\t%d\t%s\n",
			entry.Name, entry.Order, entry.Alpha, variant, format, entry.Size, entry.UpdatedAt)
	}
	return w.Flush()
}

func cmdDrop(args []string) error {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	configPath := fs.String("config", "./config.json", "path to the config file")
	name := fs.String("name", "", "model name to delete (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("drop requires -name")
	}

	e, err := setupEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.close()

	if err = e.store.Delete(context.Background(), *name); err != nil {
		return err
	}
	fmt.Printf("dropped %q\n", *name)
	return nil
}

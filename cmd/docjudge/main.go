package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dgallion1/docjudge/internal/config"
	"github.com/dgallion1/docjudge/internal/llm"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docjudge",
	Short: "Judge whether a document is worth reading in full",
	Long: "Extracts text from PDF, DOCX and TXT documents, summarizes each chunk with a language model, " +
		"and scores the document against your context rules.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrap(err, "load .env")
		}
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./docjudge.yaml)")
	rootCmd.AddCommand(analyzeCmd, chunksCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer) (*slog.Logger, error) {
	return config.NewLogger(cfg.Log, w)
}

// newBackend builds the requested backend behind the configured
// timeout, retry and rate limit policy.
func newBackend(spec llm.Spec, stats *llm.Stats, log *slog.Logger) (llm.Backend, error) {
	b, err := llm.New(spec, cfg.LLMSettings())
	if err != nil {
		return nil, err
	}
	return llm.NewResilient(b, cfg.ResilientOptions(stats, log)), nil
}

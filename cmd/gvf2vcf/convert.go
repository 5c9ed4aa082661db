package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/gvf2vcf/internal/batch"
	"github.com/inodb/gvf2vcf/internal/duckdb"
	"github.com/inodb/gvf2vcf/internal/gvf"
	"github.com/inodb/gvf2vcf/internal/output"
	"github.com/inodb/gvf2vcf/internal/reference"
)

// convertOptions holds the resolved settings of one conversion run.
type convertOptions struct {
	GVFPath       string
	ReferencePath string
	Chroms        []string
	Convention    reference.Convention
	AddHeader     bool
	AddGT         bool
	OutputPath    string
	Workers       int
	AllowMissing  bool
	DuckDBPath    string
}

func newConvertCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a GVF file to VCF",
		Long: `Convert one or more chromosomes of a gzipped GVF file to VCF.

SNVs are copied as-is. Deletions, insertions and sequence alterations are
shifted one base left and anchored on the preceding reference base. Tandem
repeats are trimmed to their minimal representation.`,
		Example: `  gvf2vcf convert --gvf homo_sapiens.gvf.gz --reference Homo_sapiens.GRCh38.dna.toplevel.fa.gz --chrom 1
  gvf2vcf convert --gvf homo_sapiens.gvf.gz --reference hg38.fa.gz --chrom 1 --ref-genome-db ucsc --add-header
  gvf2vcf convert --gvf homo_sapiens.gvf.gz --reference ref.fa.gz --chrom 21,22 -o chr21_22.vcf.gz --workers 2`,
		Args: usageArgs(cobra.NoArgs),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := optionsFromViper(v)
			if err != nil {
				return err
			}

			logger, err := newLogger(v.GetBool("verbose"))
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			return runConvert(opts, logger)
		},
	}

	f := cmd.Flags()
	f.String("gvf", "", "Path to the gzipped GVF file (required)")
	f.String("reference", "", "Path to the gzipped reference genome FASTA (required)")
	f.StringSlice("chrom", nil, "Chromosome(s) to convert, e.g. 1 or 21,22 (required)")
	f.String("ref-genome-db", string(reference.Ensembl), "Reference naming convention: ensembl or ucsc")
	f.Bool("add-header", false, "Write the VCF header block")
	f.Bool("add-gt", false, "Add FORMAT=GT and a 0|1 sample column")
	f.StringP("output", "o", "", "Output VCF path, '-' for stdout, '.gz' for BGZF (default: derived from --gvf)")
	f.Int("workers", 1, "Number of chromosomes normalized concurrently")
	f.Bool("allow-missing-reference", false, "Drop non-SNV records of chromosomes absent from the reference instead of failing")
	f.String("duckdb", "", "Also store converted records in this DuckDB database")

	return cmd
}

// optionsFromViper resolves and validates the convert settings.
func optionsFromViper(v *viper.Viper) (convertOptions, error) {
	opts := convertOptions{
		GVFPath:       v.GetString("gvf"),
		ReferencePath: v.GetString("reference"),
		AddHeader:     v.GetBool("add-header"),
		AddGT:         v.GetBool("add-gt"),
		OutputPath:    v.GetString("output"),
		Workers:       v.GetInt("workers"),
		AllowMissing:  v.GetBool("allow-missing-reference"),
		DuckDBPath:    v.GetString("duckdb"),
	}

	for _, c := range v.GetStringSlice("chrom") {
		for _, part := range strings.Split(c, ",") {
			if part = strings.TrimSpace(part); part != "" {
				opts.Chroms = append(opts.Chroms, part)
			}
		}
	}

	var missing []string
	if opts.GVFPath == "" {
		missing = append(missing, "--gvf")
	}
	if opts.ReferencePath == "" {
		missing = append(missing, "--reference")
	}
	if len(opts.Chroms) == 0 {
		missing = append(missing, "--chrom")
	}
	if len(missing) > 0 {
		return opts, &usageError{
			cmd: "gvf2vcf convert",
			msg: fmt.Sprintf("%s must be specified", strings.Join(missing, ", ")),
		}
	}

	conv, err := reference.ParseConvention(v.GetString("ref-genome-db"))
	if err != nil {
		return opts, &usageError{cmd: "gvf2vcf convert", msg: err.Error()}
	}
	opts.Convention = conv

	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.OutputPath == "" {
		opts.OutputPath = output.DefaultPath(opts.GVFPath, strings.Join(opts.Chroms, "_"))
	}
	return opts, nil
}

// runConvert parses, normalizes and writes one conversion. The output file
// is only created once every record has been normalized.
func runConvert(opts convertOptions, logger *zap.Logger) error {
	start := time.Now()
	logger.Info("starting conversion",
		zap.String("gvf", opts.GVFPath),
		zap.String("reference", opts.ReferencePath),
		zap.Strings("chrom", opts.Chroms),
		zap.String("ref_genome_db", string(opts.Convention)))

	parser, err := gvf.NewParser(opts.GVFPath, opts.Chroms...)
	if err != nil {
		return err
	}
	defer parser.Close()
	parser.SetLogger(logger)

	records, header, err := parser.ReadAll()
	if err != nil {
		return err
	}
	logger.Info("parsed gvf",
		zap.Int("lines", parser.LineNumber()),
		zap.Int("records", len(records)),
		zap.Int("skipped", parser.Skipped()),
		zap.String("genome_build", header.GenomeBuild))

	proc := batch.NewProcessor(reference.NewLoader(opts.ReferencePath, opts.Convention))
	proc.SetLogger(logger)
	proc.SetWorkers(opts.Workers)
	proc.SetAllowMissingReference(opts.AllowMissing)

	converted, err := proc.Run(records)
	if err != nil {
		return err
	}

	var prefix string
	if opts.Convention == reference.UCSC {
		prefix = "chr"
	}

	// The store must open before the output file is created.
	var store *duckdb.Store
	if opts.DuckDBPath != "" {
		store, err = duckdb.Open(opts.DuckDBPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	if err := writeVCF(opts, converted, header, prefix); err != nil {
		return err
	}
	logger.Info("wrote vcf",
		zap.String("output", opts.OutputPath),
		zap.Int("records", len(converted)))

	if store != nil {
		if err := store.WriteRecords(converted, prefix); err != nil {
			removeOutput(opts.OutputPath, logger)
			return fmt.Errorf("store records: %w", err)
		}
		logger.Info("stored records", zap.String("duckdb", opts.DuckDBPath))
	}

	logger.Info("conversion complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func writeVCF(opts convertOptions, records []*gvf.Record, header *gvf.Header, prefix string) error {
	out, err := output.Create(opts.OutputPath)
	if err != nil {
		return err
	}

	w := output.NewVCFWriter(out, output.Options{
		AddHeader:   opts.AddHeader,
		AddGT:       opts.AddGT,
		ChromPrefix: prefix,
	})
	if err := w.WriteAll(records, header); err != nil {
		out.Close()
		return fmt.Errorf("write vcf: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// removeOutput deletes a finished VCF after a later step failed.
func removeOutput(path string, logger *zap.Logger) {
	if path == "-" {
		return
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("could not remove output", zap.String("output", path), zap.Error(err))
	}
}

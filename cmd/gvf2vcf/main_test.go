package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inodb/gvf2vcf/internal/duckdb"
	"github.com/inodb/gvf2vcf/internal/reference"
)

const testGVF = `##gff-version 3
##genome-build Ensembl GRCh38.p14
##data-source Source=ensembl;version=110;Type=variation
1	dbSNP	deletion	100	101	.	+	.	ID=1;Variant_seq=-;Dbxref=dbSNP_156:rs1;Reference_seq=AT
1	dbSNP	insertion	50	49	.	+	.	ID=2;Variant_seq=AC,TG;Dbxref=dbSNP_156:rs2;Reference_seq=-
1	dbSNP	tandem_repeat	200	205	.	+	.	ID=3;Variant_seq=CAG;Dbxref=dbSNP_156:rs3;Reference_seq=CAGCAG
1	dbSNP	SNV	10	10	.	+	.	ID=4;Variant_seq=G;Dbxref=dbSNP_156:rs4;Cited=1;Reference_seq=A
1	dbSNP	copy_number_variation	300	400	.	+	.	ID=5;Variant_seq=A;Dbxref=dbSNP_156:rs5;Reference_seq=A
2	dbSNP	SNV	10	10	.	+	.	ID=6;Variant_seq=G;Dbxref=dbSNP_156:rs6;Reference_seq=A
`

// referenceFASTA returns chromosome 1 as 300 bases in 60-column lines with
// offset 48 = 'c' and offset 98 = 'g'.
func referenceFASTA(header string) string {
	flat := []byte(strings.Repeat("A", 300))
	flat[48] = 'c'
	flat[98] = 'g'

	var b strings.Builder
	b.WriteString(">" + header + " dna:chromosome\n")
	for i := 0; i < len(flat); i += 60 {
		b.Write(flat[i : i+60])
		b.WriteByte('\n')
	}
	b.WriteString(">2 dna:chromosome\nTTTTTTTTTT\n")
	return b.String()
}

func writeGzip(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func bodyLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var lines []string
	for _, l := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if !strings.HasPrefix(l, "#") {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestRunConvert_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	gvfPath := writeGzip(t, dir, "homo_sapiens.gvf.gz", testGVF)
	refPath := writeGzip(t, dir, "ref.fa.gz", referenceFASTA("1"))

	opts := convertOptions{
		GVFPath:       gvfPath,
		ReferencePath: refPath,
		Chroms:        []string{"1"},
		Convention:    reference.Ensembl,
		OutputPath:    filepath.Join(dir, "out.vcf"),
		Workers:       1,
	}
	require.NoError(t, runConvert(opts, zap.NewNop()))

	assert.Equal(t, []string{
		"1\t10\trs4\tA\tG\t.\t.\tTSA=SNV;dbSNP_156;E_Cited",
		"1\t49\trs2\tC\tCAC,CTG\t.\t.\tTSA=insertion;dbSNP_156",
		"1\t99\trs1\tGAT\tG\t.\t.\tTSA=deletion;dbSNP_156",
		"1\t200\trs3\tGCAG\tG\t.\t.\tTSA=tandem_repeat;dbSNP_156",
	}, bodyLines(t, opts.OutputPath))
}

func TestRunConvert_UCSCWithHeaderAndGT(t *testing.T) {
	dir := t.TempDir()
	gvfPath := writeGzip(t, dir, "homo_sapiens.gvf.gz", testGVF)
	refPath := writeGzip(t, dir, "hg38.fa.gz", referenceFASTA("chr1"))
	dbPath := filepath.Join(dir, "records.duckdb")

	opts := convertOptions{
		GVFPath:       gvfPath,
		ReferencePath: refPath,
		Chroms:        []string{"1"},
		Convention:    reference.UCSC,
		AddHeader:     true,
		AddGT:         true,
		OutputPath:    filepath.Join(dir, "out.vcf"),
		Workers:       2,
		DuckDBPath:    dbPath,
	}
	require.NoError(t, runConvert(opts, zap.NewNop()))

	data, err := os.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, "##fileformat=VCFv4.1\n"))
	assert.Contains(t, out, "##source=ensembl;version=110;Type=variation\n")
	assert.Contains(t, out, "##reference=Ensembl GRCh38.p14\n")
	assert.Contains(t, out, "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tENS\n")
	assert.Contains(t, out, "chr1\t99\trs1\tGAT\tG\t.\t.\tTSA=deletion;dbSNP_156\tGT\t0|1\n")

	store, err := duckdb.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	rows, err := store.LookupRecords("chr1", 49)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CAC,CTG", rows[0].Alt)
}

func TestRunConvert_ReferenceNotFound(t *testing.T) {
	dir := t.TempDir()
	gvfPath := writeGzip(t, dir, "homo_sapiens.gvf.gz", testGVF)
	refPath := writeGzip(t, dir, "ref.fa.gz", ">2\nACGT\n")
	outPath := filepath.Join(dir, "out.vcf")

	opts := convertOptions{
		GVFPath:       gvfPath,
		ReferencePath: refPath,
		Chroms:        []string{"1"},
		Convention:    reference.Ensembl,
		OutputPath:    outPath,
	}
	err := runConvert(opts, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, reference.ErrReferenceNotFound)

	// no partial output
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))

	opts.AllowMissing = true
	require.NoError(t, runConvert(opts, zap.NewNop()))
	assert.Equal(t, []string{"1\t10\trs4\tA\tG\t.\t.\tTSA=SNV;dbSNP_156;E_Cited"}, bodyLines(t, outPath))
}

func TestRunConvert_BadDuckDBPathLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	gvfPath := writeGzip(t, dir, "homo_sapiens.gvf.gz", testGVF)
	refPath := writeGzip(t, dir, "ref.fa.gz", referenceFASTA("1"))
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))
	outPath := filepath.Join(dir, "out.vcf")

	opts := convertOptions{
		GVFPath:       gvfPath,
		ReferencePath: refPath,
		Chroms:        []string{"1"},
		Convention:    reference.Ensembl,
		OutputPath:    outPath,
		Workers:       1,
		DuckDBPath:    filepath.Join(blocker, "records.duckdb"),
	}
	require.Error(t, runConvert(opts, zap.NewNop()))

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOptionsFromViper(t *testing.T) {
	v := viper.New()
	v.Set("gvf", "/data/homo_sapiens.gvf.gz")
	v.Set("reference", "/data/ref.fa.gz")
	v.Set("chrom", []string{"21,22", " X "})
	v.Set("ref-genome-db", "UCSC")
	v.Set("workers", 0)

	opts, err := optionsFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"21", "22", "X"}, opts.Chroms)
	assert.Equal(t, reference.UCSC, opts.Convention)
	assert.Equal(t, 1, opts.Workers)
	assert.Equal(t, "/data/homo_sapiens.21_22_X.vcf", opts.OutputPath)
}

func TestOptionsFromViper_Missing(t *testing.T) {
	v := viper.New()
	v.Set("reference", "/data/ref.fa.gz")

	_, err := optionsFromViper(v)
	require.Error(t, err)
	var ue *usageError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "--gvf, --chrom must be specified", ue.Error())
}

func TestOptionsFromViper_BadConvention(t *testing.T) {
	v := viper.New()
	v.Set("gvf", "a.gvf.gz")
	v.Set("reference", "ref.fa.gz")
	v.Set("chrom", []string{"1"})
	v.Set("ref-genome-db", "refseq")

	_, err := optionsFromViper(v)
	var ue *usageError
	require.ErrorAs(t, err, &ue)
}

func TestRun_ExitCodes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	assert.Equal(t, ExitUsage, run([]string{"convert"}))
	assert.Equal(t, ExitUsage, run([]string{"convert", "--no-such-flag"}))
	assert.Equal(t, ExitUsage, run([]string{"convert", "stray-arg"}))
	assert.Equal(t, ExitUsage, run([]string{"config", "get"}))
	assert.Equal(t, ExitUsage, run([]string{"config", "set", "only-key"}))

	dir := t.TempDir()
	gvfPath := writeGzip(t, dir, "homo_sapiens.gvf.gz", testGVF)
	refPath := writeGzip(t, dir, "ref.fa.gz", referenceFASTA("1"))
	outPath := filepath.Join(dir, "cli.vcf")

	assert.Equal(t, ExitSuccess, run([]string{
		"convert", "--gvf", gvfPath, "--reference", refPath, "--chrom", "1", "-o", outPath, "--add-header",
	}))
	assert.Len(t, bodyLines(t, outPath), 4)

	assert.Equal(t, ExitError, run([]string{
		"convert", "--gvf", gvfPath, "--reference", refPath, "--chrom", "1", "--ref-genome-db", "ucsc", "-o", outPath,
	}))
}

func TestConfigSetGet(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "gvf2vcf.yaml")
	v := viper.New()
	v.SetConfigFile(cfg)

	var buf bytes.Buffer
	require.NoError(t, runConfigSet(v, &buf, "add-header", "yes"))
	require.NoError(t, runConfigSet(v, &buf, "ref-genome-db", "ucsc"))
	assert.Contains(t, buf.String(), "Set ref-genome-db = ucsc in "+cfg)

	reloaded := viper.New()
	reloaded.SetConfigFile(cfg)
	require.NoError(t, reloaded.ReadInConfig())

	buf.Reset()
	require.NoError(t, runConfigGet(reloaded, &buf, "add-header"))
	assert.Equal(t, "true\n", buf.String())

	buf.Reset()
	require.NoError(t, runConfigShow(reloaded, &buf))
	assert.Contains(t, buf.String(), "ref-genome-db: ucsc")

	assert.Error(t, runConfigGet(reloaded, &buf, "missing"))
}

package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-compressor-go/internal/codec"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/extractor"
	"photo-compressor-go/internal/logger"
	"photo-compressor-go/internal/resize"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/testutil"
)

// fakeCodec returns out (or a numbered payload when out is nil) for every call.
type fakeCodec struct {
	mu     sync.Mutex
	out    []byte
	err    error
	calls  int
	params []codec.Parameters
}

func (f *fakeCodec) produce(p codec.Parameters) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return append([]byte(nil), f.out...), nil
	}
	return []byte(fmt.Sprintf("run-%d", f.calls)), nil
}

func (f *fakeCodec) Recompress(_ []byte, p codec.Parameters) ([]byte, error) { return f.produce(p) }

func (f *fakeCodec) Convert(_ []byte, p codec.Parameters, _ codec.Format) ([]byte, error) {
	return f.produce(p)
}

func (f *fakeCodec) CompressToSize(_ []byte, p codec.Parameters, _ int64) ([]byte, error) {
	return f.produce(p)
}

func (f *fakeCodec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDeriver struct {
	target resize.Target
	err    error
}

func (d fakeDeriver) Derive(config.ResizeConfig, string, string, bool) (resize.Target, error) {
	return d.target, d.err
}

type fakeCopier struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (c *fakeCopier) Copy(src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, src)
	return c.err
}

func newCompressor(c codec.Codec) *DefaultCompressor {
	return NewDefaultCompressor(c, fakeDeriver{}, nil, logger.Discard())
}

func testConfig(out string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Output = out
	return cfg
}

func inputFile(t *testing.T, dir, name string, data []byte) scanner.InputFile {
	t.Helper()
	path := testutil.WriteFile(t, dir, name, data)
	mime := scanner.MIMEJPEG
	if strings.HasSuffix(name, ".png") {
		mime = scanner.MIMEPNG
	}
	return scanner.InputFile{Path: path, Size: int64(len(data)), MIME: mime}
}

func compress(t *testing.T, c Compressor, files []scanner.InputFile, base string, cfg *config.Config) []CompressionResult {
	t.Helper()
	results, err := c.Compress(context.Background(), CompressionParams{Files: files, BasePath: base, Config: cfg})
	require.NoError(t, err)
	require.Len(t, results, len(files))
	return results
}

func stagedLeftovers(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	return matches
}

func TestCompressResultsAlignWithInputs(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var files []scanner.InputFile
	for i := 0; i < 25; i++ {
		files = append(files, inputFile(t, in, fmt.Sprintf("img%02d.jpg", i), bytes.Repeat([]byte{'x'}, i+1)))
	}

	cfg := testConfig(out)
	cfg.Threads = 4
	results := compress(t, newCompressor(&fakeCodec{out: []byte("tiny")}), files, in, cfg)

	for i, r := range results {
		assert.Equal(t, files[i].Path, r.OriginalPath)
		assert.Equal(t, StatusSuccess, r.Status, r.Message)
		assert.Equal(t, int64(i+1), r.OriginalSize)
		assert.Equal(t, int64(4), r.CompressedSize)
		assert.Equal(t, filepath.Join(out, filepath.Base(files[i].Path)), r.OutputPath)
	}
	assert.Empty(t, stagedLeftovers(t, out))
}

func TestCompressNeverSkipsExistingWithoutCodec(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	f := inputFile(t, in, "a.jpg", []byte("original-bytes"))
	existing := testutil.WriteFile(t, out, "a.jpg", []byte("keep me"))

	cfg := testConfig(out)
	cfg.Overwrite = config.OverwriteNever
	fc := &fakeCodec{}
	r := compress(t, newCompressor(fc), []scanner.InputFile{f}, in, cfg)[0]

	assert.Equal(t, StatusSkipped, r.Status)
	assert.Equal(t, r.OriginalSize, r.CompressedSize)
	assert.Zero(t, fc.callCount())
	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))
}

func TestCompressBiggerKeepsSmallerDestination(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	f := inputFile(t, in, "a.jpg", []byte("original-bytes"))
	existing := testutil.WriteFile(t, out, "a.jpg", []byte("12345"))

	cfg := testConfig(out)
	cfg.Overwrite = config.OverwriteBigger

	// Produced output has the same size as the destination: not smaller, so skipped.
	r := compress(t, newCompressor(&fakeCodec{out: []byte("abcde")}), []scanner.InputFile{f}, in, cfg)[0]
	assert.Equal(t, StatusSkipped, r.Status)
	assert.Equal(t, r.OriginalSize, r.CompressedSize)
	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(got))
	assert.Empty(t, stagedLeftovers(t, out))

	r = compress(t, newCompressor(&fakeCodec{out: []byte("abc")}), []scanner.InputFile{f}, in, cfg)[0]
	assert.Equal(t, StatusSuccess, r.Status)
	got, err = os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestCompressAllTwiceKeepsSecondOutput(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	f := inputFile(t, in, "a.jpg", []byte("original-bytes"))
	cfg := testConfig(out)
	fc := &fakeCodec{}
	c := newCompressor(fc)

	first := compress(t, c, []scanner.InputFile{f}, in, cfg)[0]
	second := compress(t, c, []scanner.InputFile{f}, in, cfg)[0]

	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, StatusSuccess, second.Status)
	got, err := os.ReadFile(second.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "run-2", string(got))
}

func TestCompressDryRunWritesNothing(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "not-created")
	f := inputFile(t, in, "a.jpg", []byte("data"))

	cfg := testConfig(out)
	cfg.DryRun = true
	fc := &fakeCodec{}
	r := compress(t, newCompressor(fc), []scanner.InputFile{f}, in, cfg)[0]

	assert.Equal(t, StatusSuccess, r.Status)
	assert.Equal(t, filepath.Join(out, "a.jpg"), r.OutputPath)
	assert.Equal(t, r.OriginalSize, r.CompressedSize)
	assert.Zero(t, fc.callCount())
	assert.NoDirExists(t, out)
}

func TestCompressCodecErrorIsPerFile(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := []scanner.InputFile{
		inputFile(t, in, "a.jpg", []byte("a")),
		inputFile(t, in, "b.jpg", []byte("b")),
	}
	results := compress(t, newCompressor(&fakeCodec{err: errors.New("corrupt stream")}), files, in, testConfig(out))

	for _, r := range results {
		assert.Equal(t, StatusError, r.Status)
		assert.Contains(t, r.Message, "corrupt stream")
		assert.Equal(t, r.OriginalSize, r.CompressedSize)
	}
	assert.Empty(t, stagedLeftovers(t, out))
}

func TestCompressSizeGate(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := filepath.Join(in, "huge.jpg")
	fh, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, fh.Truncate(MaxInputSize+1))
	require.NoError(t, fh.Close())

	fc := &fakeCodec{}
	r := compress(t, newCompressor(fc), []scanner.InputFile{{Path: path, Size: MaxInputSize + 1, MIME: scanner.MIMEJPEG}}, in, testConfig(out))[0]
	assert.Equal(t, StatusSkipped, r.Status)
	assert.Equal(t, "exceeds size limit", r.Message)
	assert.Zero(t, fc.callCount())
}

func TestCompressMissingInput(t *testing.T) {
	r := compress(t, newCompressor(&fakeCodec{}),
		[]scanner.InputFile{{Path: filepath.Join(t.TempDir(), "gone.jpg"), Size: 3}}, "", testConfig(t.TempDir()))[0]
	assert.Equal(t, StatusError, r.Status)
	assert.Contains(t, r.Message, "stat input")
}

func TestCompressKeepStructure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(in, "folder", "deep"), 0o755))
	f := inputFile(t, filepath.Join(in, "folder", "deep"), "test.jpg", []byte("data"))

	cfg := testConfig(out)
	cfg.Recursive = true
	cfg.KeepStructure = true
	cfg.Suffix = "_x"
	r := compress(t, newCompressor(&fakeCodec{out: []byte("z")}), []scanner.InputFile{f}, in, cfg)[0]

	require.Equal(t, StatusSuccess, r.Status, r.Message)
	assert.Equal(t, filepath.Join(out, "folder", "deep", "test_x.jpg"), r.OutputPath)
	assert.FileExists(t, r.OutputPath)

	r = compress(t, newCompressor(&fakeCodec{}), []scanner.InputFile{f}, "", cfg)[0]
	assert.Equal(t, StatusError, r.Status)
	assert.Contains(t, r.Message, "resolve output path")
}

func TestCompressConvertRenamesExtension(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	f := inputFile(t, in, "photo.jpg", []byte("data"))
	cfg := testConfig(out)
	cfg.Format = config.FormatPNG

	r := compress(t, newCompressor(&fakeCodec{out: []byte("png")}), []scanner.InputFile{f}, in, cfg)[0]
	assert.Equal(t, filepath.Join(out, "photo.png"), r.OutputPath)
}

func TestCompressCancelled(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := []scanner.InputFile{
		inputFile(t, in, "a.jpg", []byte("a")),
		inputFile(t, in, "b.jpg", []byte("b")),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc := &fakeCodec{}
	results, err := newCompressor(fc).Compress(ctx, CompressionParams{Files: files, BasePath: in, Config: testConfig(out)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, files[i].Path, r.OriginalPath)
		assert.Equal(t, StatusSkipped, r.Status)
		assert.Equal(t, "batch cancelled", r.Message)
	}
	assert.Zero(t, fc.callCount())
}

func TestCompressProgress(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	var files []scanner.InputFile
	for i := 0; i < 6; i++ {
		files = append(files, inputFile(t, in, fmt.Sprintf("%d.jpg", i), []byte("data")))
	}

	var mu sync.Mutex
	var seen []int
	_, err := newCompressor(&fakeCodec{out: []byte("o")}).Compress(context.Background(), CompressionParams{
		Files:    files,
		BasePath: in,
		Config:   testConfig(out),
		Progress: func(done, total int, _ CompressionResult) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 6, total)
			seen = append(seen, done)
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6}, seen)
}

func TestCompressKeepDates(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	f := inputFile(t, in, "a.jpg", []byte("data"))
	mod := time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(f.Path, mod, mod))

	cfg := testConfig(out)
	cfg.KeepDates = true
	r := compress(t, newCompressor(&fakeCodec{out: []byte("o")}), []scanner.InputFile{f}, in, cfg)[0]
	require.Equal(t, StatusSuccess, r.Status, r.Message)

	info, err := os.Stat(r.OutputPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mod))
}

func TestCompressMetadataOnlyForJPEGOutput(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := []scanner.InputFile{
		inputFile(t, in, "a.jpg", []byte("jpeg")),
		inputFile(t, in, "b.png", []byte("png")),
	}
	cfg := testConfig(out)
	cfg.Exif = true

	copier := &fakeCopier{err: errors.New("exiftool missing")}
	c := NewDefaultCompressor(&fakeCodec{out: []byte("o")}, fakeDeriver{}, copier, logger.Discard())
	results := compress(t, c, files, in, cfg)

	assert.Equal(t, []string{files[0].Path}, copier.calls)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Contains(t, results[0].Message, "metadata not copied")
	assert.Empty(t, results[1].Message)
}

func TestCompressPassesResizeTarget(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	f := inputFile(t, in, "a.jpg", []byte("data"))
	cfg := testConfig(out)
	cfg.Resize.LongEdge = 100

	fc := &fakeCodec{out: []byte("o")}
	target := resize.Target{Height: 100, Orientation: extractor.OrientationRotate90CW}
	c := NewDefaultCompressor(fc, fakeDeriver{target: target}, nil, logger.Discard())
	compress(t, c, []scanner.InputFile{f}, in, cfg)

	require.Len(t, fc.params, 1)
	assert.Equal(t, 100, fc.params[0].Height)
	assert.Zero(t, fc.params[0].Width)
	assert.Equal(t, extractor.OrientationRotate90CW, fc.params[0].Orientation)

	c = NewDefaultCompressor(fc, fakeDeriver{err: errors.New("bad header")}, nil, logger.Discard())
	r := compress(t, c, []scanner.InputFile{f}, in, cfg)[0]
	assert.Equal(t, StatusError, r.Status)
	assert.Contains(t, r.Message, "bad header")
}

func TestCompressNoUpscaleKeepsDimensions(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	f := inputFile(t, in, "a.jpg", testutil.JPEG(t, 40, 30, 90))

	cfg := testConfig(out)
	cfg.Resize.Width = 400
	cfg.Resize.NoUpscale = true
	deriver := resize.NewDeriver(resize.HeaderProber{}, extractor.NewEXIFExtractor(logger.Discard()))
	c := NewDefaultCompressor(codec.NewImagingCodec(), deriver, nil, logger.Discard())

	r := compress(t, c, []scanner.InputFile{f}, in, cfg)[0]
	require.Equal(t, StatusSuccess, r.Status, r.Message)

	fh, err := os.Open(r.OutputPath)
	require.NoError(t, err)
	defer fh.Close()
	dims, _, err := image.DecodeConfig(fh)
	require.NoError(t, err)
	assert.Equal(t, 40, dims.Width)
	assert.Equal(t, 30, dims.Height)
}

func TestCompressRequiresConfig(t *testing.T) {
	_, err := newCompressor(&fakeCodec{}).Compress(context.Background(), CompressionParams{})
	assert.Error(t, err)

	results, err := newCompressor(&fakeCodec{}).Compress(context.Background(), CompressionParams{Config: config.DefaultConfig()})
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), Workers(0))
	assert.Equal(t, 1, Workers(1))
	assert.Equal(t, runtime.NumCPU(), Workers(runtime.NumCPU()+10))
}

func TestStatusText(t *testing.T) {
	b, err := StatusSkipped.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "skipped", string(b))
	assert.Equal(t, "error", StatusError.String())
}

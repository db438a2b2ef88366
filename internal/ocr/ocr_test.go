package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
)

type fakeRaster struct {
	pages  int
	w, h   int
	closed bool
}

func (f *fakeRaster) PageCount() int { return f.pages }

func (f *fakeRaster) Page(i int) (image.Image, error) {
	img := imaging.New(f.w, f.h, color.White)
	for x := 10; x < f.w-10; x++ {
		img.Set(x, f.h/2, color.Black)
	}
	return img, nil
}

func (f *fakeRaster) Close() error {
	f.closed = true
	return nil
}

type fakeVision struct {
	mu    sync.Mutex
	sizes []image.Point
	err   error
}

func (f *fakeVision) Transcribe(ctx context.Context, prompt string, png []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	cfg, err := imaging.Decode(strings.NewReader(string(png)))
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, cfg.Bounds().Size())
	return "trang", nil
}

func TestBatchSize(t *testing.T) {
	cases := map[int]int{1: 5, 20: 5, 21: 3, 200: 3}
	for total, want := range cases {
		if got := BatchSize(total); got != want {
			t.Fatalf("BatchSize(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestToMarkdownBatchesPages(t *testing.T) {
	raster := &fakeRaster{pages: 7, w: 40, h: 60}
	vision := &fakeVision{}
	b := &Bridge{
		Vision:   vision,
		Prompt:   "md",
		Open:     func([]byte) (Rasterizer, error) { return raster, nil },
		MaxBytes: MaxImageBytes,
	}

	md, err := b.ToMarkdown(context.Background(), "hs-1", []byte("%PDF"))
	if err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}
	if len(vision.sizes) != 2 {
		t.Fatalf("expected 2 vision calls for 7 pages, got %d", len(vision.sizes))
	}
	wantFirst := 5*60 + 4*(separatorHeight+2*separatorMargin)
	if vision.sizes[0].Y != wantFirst {
		t.Fatalf("first batch height = %d, want %d", vision.sizes[0].Y, wantFirst)
	}
	if strings.Count(md, "---") != 1 {
		t.Fatalf("expected one batch separator, got %q", md)
	}
	if !raster.closed {
		t.Fatalf("expected rasterizer to be closed")
	}
}

func TestTranscribeHalvesOversizedBatch(t *testing.T) {
	raster := &fakeRaster{pages: 4, w: 40, h: 60}
	vision := &fakeVision{}
	one, err := EncodePNG(Concat([]image.Image{Preprocess(mustPage(t, raster))}))
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	b := &Bridge{
		Vision:   vision,
		Open:     func([]byte) (Rasterizer, error) { return raster, nil },
		MaxBytes: len(one) + 1,
	}
	if _, err := b.ToMarkdown(context.Background(), "hs-1", nil); err != nil {
		t.Fatalf("ToMarkdown: %v", err)
	}
	if len(vision.sizes) != 4 {
		t.Fatalf("expected batch to be split into single pages, got %d calls", len(vision.sizes))
	}
}

func TestToMarkdownPropagatesVisionError(t *testing.T) {
	boom := errors.New("vision down")
	b := &Bridge{
		Vision:   &fakeVision{err: boom},
		Open:     func([]byte) (Rasterizer, error) { return &fakeRaster{pages: 1, w: 20, h: 20}, nil },
		MaxBytes: MaxImageBytes,
	}
	if _, err := b.ToMarkdown(context.Background(), "hs-1", nil); !errors.Is(err, boom) {
		t.Fatalf("expected vision error, got %v", err)
	}
}

func TestPreprocessBinarizes(t *testing.T) {
	src := imaging.New(30, 30, color.Gray{Y: 200})
	for x := 5; x < 25; x++ {
		for y := 14; y < 17; y++ {
			src.Set(x, y, color.Gray{Y: 20})
		}
	}
	out := Preprocess(src)
	if out.Bounds().Dx() != 30 || out.Bounds().Dy() != 30 {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}
	r, _, _, _ := out.At(15, 15).RGBA()
	if r>>8 > 64 {
		t.Fatalf("expected dark stroke to stay dark, got %d", r>>8)
	}
	r, _, _, _ = out.At(2, 2).RGBA()
	if r>>8 < 192 {
		t.Fatalf("expected background to stay light, got %d", r>>8)
	}
}

func mustPage(t *testing.T, r Rasterizer) image.Image {
	t.Helper()
	img, err := r.Page(0)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	return img
}

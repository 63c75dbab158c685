package convert

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FedeMPouzols/cngi-prototype/image"
	"github.com/FedeMPouzols/cngi-prototype/zarr"
)

// DefaultArtifacts is the fixed auxiliary artifact list searched next to the
// input when the caller supplies none.
var DefaultArtifacts = []string{"mask", "model", "pb", "psf", "residual", "sumwt"}

// FreqDim is the dimension channels are streamed and appended along.
const FreqDim = "frequency"

// StoreOpener returns a store rooted at the given output path.
type StoreOpener func(path string) (zarr.Store, error)

// Converter streams legacy image products into zarr stores.
type Converter struct {
	Opener image.Opener
	Stores StoreOpener
	Log    *zap.Logger
}

// ImageToZarr converts the image at infile plus any of the listed sibling
// artifacts that exist (located by the <prefix>.<type> convention). Artifacts
// sharing the reference shape land in one store at outfile (default: infile
// with a .zarr extension); each divergent artifact gets its own store at
// <prefix>.<type>.zarr.
//
// The pipeline is synchronous and has no retry: the first read, conversion or
// write failure aborts the group, leaving any partial output on disk.
func (c *Converter) ImageToZarr(infile, outfile string, artifacts []string) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	dot := strings.LastIndex(infile, ".")
	if dot < 0 {
		return fmt.Errorf("input %q has no extension to derive the artifact type from", infile)
	}
	prefix, suffix := infile[:dot], infile[dot+1:]
	// sanitize so a trailing slash does not leak into the artifact type
	for strings.HasSuffix(suffix, "/") {
		suffix = strings.TrimSuffix(suffix, "/")
	}
	if outfile == "" {
		outfile = prefix + ".zarr"
	}
	if artifacts == nil {
		artifacts = DefaultArtifacts
	}
	types := append([]string{suffix}, artifacts...)

	begin := time.Now()
	ref, compatible, divergent, err := GroupArtifacts(c.Opener, prefix, types)
	if err != nil {
		return err
	}
	divTypes := make([]string, len(divergent))
	for i, d := range divergent {
		divTypes[i] = d.Type
	}
	log.Info("compatible components", zap.Strings("types", compatible))
	log.Info("separate components", zap.Strings("types", divTypes))

	if err := c.writeGroup(outfile, prefix, ref, compatible, log); err != nil {
		return err
	}
	log.Info("processed image",
		zap.Ints("shape", ref.Shape),
		zap.Duration("elapsed", time.Since(begin)))

	for _, d := range divergent {
		out := prefix + "." + d.Type + ".zarr"
		if err := c.writeGroup(out, prefix, d.Meta, []string{d.Type}, log); err != nil {
			return err
		}
	}
	return nil
}

// writeGroup streams every frequency channel of one artifact group into the
// store at outpath: the store is created with the fixed compression policy on
// the first channel and grown by one positional append per later channel.
func (c *Converter) writeGroup(outpath, prefix string, meta *Snapshot, types []string, log *zap.Logger) error {
	store, err := c.Stores(outpath)
	if err != nil {
		return fmt.Errorf("opening store %s: %w", outpath, err)
	}
	if err := zarr.DestroyStore(store); err != nil {
		return fmt.Errorf("clearing store %s: %w", outpath, err)
	}

	chanAxis := indexOf(meta.Dims, FreqDim)
	if chanAxis < 0 {
		return fmt.Errorf("no %s dimension among %v", FreqDim, meta.Dims)
	}
	freq, ok := meta.Coords[FreqDim]
	if !ok {
		return fmt.Errorf("no %s coordinate resolved", FreqDim)
	}
	nchan := meta.Shape[chanAxis]

	slabShape := append([]int{}, meta.Shape...)
	slabShape[chanAxis] = 1

	for ch := 0; ch < nchan; ch++ {
		log.Info("processing channel",
			zap.Int("channel", ch+1),
			zap.Int("of", nchan),
			zap.String("out", outpath))

		// narrow the frequency coordinate to this channel's single value
		coords := map[string]zarr.Variable{}
		for name, co := range meta.Coords {
			if name == FreqDim {
				coords[name] = zarr.Variable{
					Dims:   []string{FreqDim},
					Shape:  []int{1},
					Values: []float64{freq.Values[ch]},
				}
				continue
			}
			coords[name] = zarr.Variable{Dims: co.Dims, Shape: co.Shape, Values: co.Values}
		}

		blc := make([]int, len(meta.Shape))
		trc := make([]int, len(meta.Shape))
		for d := range blc {
			blc[d], trc[d] = image.FullRange, image.FullRange
		}
		blc[chanAxis], trc[chanAxis] = ch, ch

		vars := map[string]zarr.Variable{}
		for _, t := range types {
			data, err := readChannel(c.Opener, prefix+"."+t, blc, trc)
			if err != nil {
				return fmt.Errorf("reading %s channel %d: %w", t, ch, err)
			}
			name := t
			if name == "fits" {
				name = "image"
			}
			vars[name] = zarr.Variable{Dims: meta.Dims, Shape: slabShape, Values: data}
		}

		ds := &zarr.Dataset{Vars: vars, Coords: coords}
		if ch == 0 {
			ds.Attrs = zarr.Attributes(meta.Attrs)
			enc := map[string]*zarr.CompressionMeta{}
			for name := range vars {
				enc[name] = zarr.DefaultCompression()
			}
			if err := zarr.CreateDataset(store, ds, enc); err != nil {
				return fmt.Errorf("creating store %s: %w", outpath, err)
			}
		} else {
			if err := zarr.AppendDataset(store, ds, FreqDim); err != nil {
				return fmt.Errorf("appending channel %d to %s: %w", ch, outpath, err)
			}
		}
	}

	return zarr.Consolidate(store)
}

// readChannel opens an artifact, reads one channel slab and closes the
// handle again; no handle survives the call.
func readChannel(op image.Opener, path string, blc, trc []int) ([]float32, error) {
	img, err := op.Open(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return img.Chunk(blc, trc)
}

func indexOf(list []string, s string) int {
	for i, el := range list {
		if el == s {
			return i
		}
	}
	return -1
}

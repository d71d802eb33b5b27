package pdfsign

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"
)

// Signature box geometry in page units. The box is anchored to the bottom-right
// corner of the first page.
const (
	BoxWidth  = 200
	BoxHeight = 100
	Margin    = 20
)

// strokeOffsets thicken the signature by drawing it five times; the last pass is
// the unshifted one so it ends up on top.
var strokeOffsets = [][2]float64{
	{-1, -1},
	{+1, -1},
	{-1, +1},
	{+1, +1},
	{0, 0},
}

var (
	ErrSignatureFormat = errors.New("invalid signature data format")
	ErrSignatureImage  = errors.New("invalid signature image")
)

// DecodeSignature accepts raw base64 or a data URI and returns the decoded image.
func DecodeSignature(payload string) (image.Image, error) {
	b64 := strings.TrimSpace(payload)
	if strings.HasPrefix(b64, "data:") {
		i := strings.IndexByte(b64, ',')
		if i < 0 {
			return nil, ErrSignatureFormat
		}
		b64 = b64[i+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignatureImage, err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureImage, err)
	}
	return img, nil
}

// fitBox resamples img to exactly BoxWidth x BoxHeight pixels.
func fitBox(img image.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, BoxWidth, BoxHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Stamp draws img onto page index 0 of data and returns the serialized result.
// Other pages are left untouched.
func Stamp(data []byte, img image.Image) ([]byte, error) {
	if _, err := Inspect(data); err != nil {
		return nil, err
	}

	var sig bytes.Buffer
	if err := png.Encode(&sig, fitBox(img)); err != nil {
		return nil, fmt.Errorf("%w: encode signature: %v", ErrProcessing, err)
	}

	wms := make([]*model.Watermark, 0, len(strokeOffsets))
	for _, off := range strokeOffsets {
		wm, err := api.ImageWatermarkForReader(bytes.NewReader(sig.Bytes()), stampDesc(off), true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("%w: build stamp: %v", ErrProcessing, err)
		}
		wms = append(wms, wm)
	}

	conf := newConfig()
	conf.Cmd = model.ADDWATERMARKS
	conf.OptimizeDuplicateContentStreams = false
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, classify(err)
	}
	if err := isolateFirstPage(ctx); err != nil {
		return nil, classify(err)
	}
	if err := pdfcpu.AddWatermarksSliceMap(ctx, map[int][]*model.Watermark{1: wms}); err != nil {
		return nil, classify(err)
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, classify(err)
	}
	return out.Bytes(), nil
}

// isolateFirstPage gives page 1 private copies of any content streams it shares
// with other pages. The stamp is appended to page 1's content in place, so a
// shared stream would carry it onto pages that lack the stamp resources.
func isolateFirstPage(ctx *model.Context) error {
	if ctx.PageCount < 2 {
		return nil
	}

	shared := map[int]bool{}
	for nr := 2; nr <= ctx.PageCount; nr++ {
		d, _, _, err := ctx.PageDict(nr, false)
		if err != nil {
			return err
		}
		refs, err := contentRefs(ctx, d)
		if err != nil {
			return err
		}
		for _, ir := range refs {
			shared[ir.ObjectNumber.Value()] = true
		}
	}

	first, _, _, err := ctx.PageDict(1, false)
	if err != nil {
		return err
	}
	refs, err := contentRefs(ctx, first)
	if err != nil {
		return err
	}

	copied := false
	arr := make(types.Array, 0, len(refs))
	for _, ir := range refs {
		if !shared[ir.ObjectNumber.Value()] {
			arr = append(arr, ir)
			continue
		}
		dup, err := copyStream(ctx, ir)
		if err != nil {
			return err
		}
		arr = append(arr, *dup)
		copied = true
	}
	if !copied {
		return nil
	}
	if len(arr) == 1 {
		first["Contents"] = arr[0]
	} else {
		first["Contents"] = arr
	}
	return nil
}

// contentRefs lists the content stream references of page dict d, resolving an
// indirect Contents array.
func contentRefs(ctx *model.Context, d types.Dict) ([]types.IndirectRef, error) {
	obj, ok := d.Find("Contents")
	if !ok || obj == nil {
		return nil, nil
	}
	if ir, ok := obj.(types.IndirectRef); ok {
		resolved, err := ctx.Dereference(ir)
		if err != nil {
			return nil, err
		}
		if _, isArr := resolved.(types.Array); !isArr {
			return []types.IndirectRef{ir}, nil
		}
		obj = resolved
	}

	arr, ok := obj.(types.Array)
	if !ok {
		return nil, nil
	}
	refs := make([]types.IndirectRef, 0, len(arr))
	for _, o := range arr {
		if ir, ok := o.(types.IndirectRef); ok {
			refs = append(refs, ir)
		}
	}
	return refs, nil
}

func copyStream(ctx *model.Context, ir types.IndirectRef) (*types.IndirectRef, error) {
	sd, _, err := ctx.DereferenceStreamDict(ir)
	if err != nil {
		return nil, err
	}
	if sd == nil {
		return nil, fmt.Errorf("content stream %s is missing", ir)
	}
	dup := sd.Clone().(types.StreamDict)
	dup.Raw = bytes.Clone(sd.Raw)
	dup.Content = bytes.Clone(sd.Content)
	return ctx.IndRefForNewObject(dup)
}

// stampDesc places the box so its lower-left corner sits at
// (pageWidth - BoxWidth - Margin + dx, Margin + dy).
func stampDesc(off [2]float64) string {
	return fmt.Sprintf("position:br, offset:%g %g, scalefactor:1 abs, rotation:0, opacity:1",
		-Margin+off[0], Margin+off[1])
}

package pdf

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ImageRef locates one image XObject drawn on one page. ObjNr is only
// meaningful inside the document it came from; Hash is the
// cross-document identity (sha256 over decoded raster pixels). Hash is
// empty when the raster content could not be decoded.
type ImageRef struct {
	PageNr int // 1-based
	ObjNr  int
	Name   string // XObject resource name, e.g. "Im1"
	Hash   string
	data   []byte // extracted image file bytes (png/jpg/...), for thumbnails
}

// Document is an exclusive handle to one opened PDF. It is not safe
// for concurrent use; distinct Documents are independent.
type Document struct {
	Path string

	ctx  *model.Context
	conf *model.Configuration
	data []byte // the original file bytes; never mutated
}

// OpenDocument reads and validates a PDF. The file on disk is never
// modified through the returned handle.
func OpenDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &OpenError{File: path, Err: err}
	}

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &OpenError{File: path, Err: err}
	}
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, &OpenError{File: path, Err: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &OpenError{File: path, Err: err}
	}

	return &Document{Path: path, ctx: ctx, conf: conf, data: data}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// RawBytes returns the bytes of the originally opened file.
func (d *Document) RawBytes() []byte {
	return d.data
}

// Images extracts every image reference, ordered by page then object
// number. pages restricts extraction to the given 1-based page numbers;
// nil means all pages. References whose pixels cannot be decoded are
// returned with an empty Hash alongside a DecodeError.
func (d *Document) Images(pages []int) ([]ImageRef, []error) {
	pageImages, err := api.ExtractImagesRaw(bytes.NewReader(d.data), pageSelectors(pages), d.conf)
	if err != nil {
		return nil, []error{fmt.Errorf("extract images from %s: %w", d.Path, err)}
	}

	var refs []ImageRef
	var errs []error
	for _, byObjNr := range pageImages {
		for objNr, img := range byObjNr {
			raw, readErr := io.ReadAll(img)
			ref := ImageRef{PageNr: img.PageNr, ObjNr: objNr, Name: img.Name, data: raw}
			if readErr != nil {
				errs = append(errs, &DecodeError{File: d.Path, PageNr: img.PageNr, ObjNr: objNr, Err: readErr})
				refs = append(refs, ref)
				continue
			}
			decoded, _, decErr := image.Decode(bytes.NewReader(raw))
			if decErr != nil {
				errs = append(errs, &DecodeError{File: d.Path, PageNr: img.PageNr, ObjNr: objNr, Err: decErr})
				refs = append(refs, ref)
				continue
			}
			ref.Hash = hashPixels(decoded)
			refs = append(refs, ref)
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].PageNr != refs[j].PageNr {
			return refs[i].PageNr < refs[j].PageNr
		}
		return refs[i].ObjNr < refs[j].ObjNr
	})
	return refs, errs
}

// pageSelectors renders validated page numbers in the form the
// extraction API's page selection expects. nil means every page.
func pageSelectors(pages []int) []string {
	if len(pages) == 0 {
		return nil
	}
	sel := make([]string, len(pages))
	for i, p := range pages {
		sel[i] = strconv.Itoa(p)
	}
	return sel
}

// resourceDict resolves the page's effective Resources dictionary,
// honoring inherited attributes.
func (d *Document) resourceDict(pageNr int) (types.Dict, error) {
	pageDict, _, inheritedAttrs, err := d.ctx.PageDict(pageNr, true)
	if err != nil {
		return nil, fmt.Errorf("page dict %d: %w", pageNr, err)
	}
	if inheritedAttrs != nil && inheritedAttrs.Resources != nil {
		return inheritedAttrs.Resources, nil
	}
	resDict := pageDict.DictEntry("Resources")
	if resDict == nil {
		return nil, fmt.Errorf("page %d has no Resources dictionary", pageNr)
	}
	return resDict, nil
}

// xObjectDict resolves the XObject sub-dictionary of a page's
// resources, following an indirect reference if present.
func (d *Document) xObjectDict(pageNr int) (types.Dict, error) {
	resDict, err := d.resourceDict(pageNr)
	if err != nil {
		return nil, err
	}
	entry, found := resDict.Find("XObject")
	if !found {
		return nil, nil
	}
	switch v := entry.(type) {
	case types.Dict:
		return v, nil
	case types.IndirectRef:
		deref, err := d.ctx.Dereference(v)
		if err != nil {
			return nil, fmt.Errorf("dereference XObject dict: %w", err)
		}
		dict, ok := deref.(types.Dict)
		if !ok {
			return nil, fmt.Errorf("XObject entry is %T, not a dictionary", deref)
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unexpected XObject entry type %T", entry)
}

// xObjectName finds the resource name a page uses for the given object
// number, or "" if the page does not reference it.
func (d *Document) xObjectName(pageNr, objNr int) (string, error) {
	xobjDict, err := d.xObjectDict(pageNr)
	if err != nil || xobjDict == nil {
		return "", err
	}
	for key, val := range xobjDict {
		if indRef, ok := val.(types.IndirectRef); ok {
			if indRef.ObjectNumber.Value() == objNr {
				return key, nil
			}
		}
	}
	return "", nil
}

// pagesReferencing lists the pages whose resources still point at the
// given object number.
func (d *Document) pagesReferencing(objNr int) []int {
	var pages []int
	for pageNr := 1; pageNr <= d.PageCount(); pageNr++ {
		name, err := d.xObjectName(pageNr, objNr)
		if err == nil && name != "" {
			pages = append(pages, pageNr)
		}
	}
	return pages
}

// contentStreamRefs collects the indirect references of a page's
// content stream(s), in stream order.
func (d *Document) contentStreamRefs(pageNr int) ([]types.IndirectRef, error) {
	pageDict, _, _, err := d.ctx.PageDict(pageNr, true)
	if err != nil {
		return nil, fmt.Errorf("page dict %d: %w", pageNr, err)
	}
	obj, found := pageDict.Find("Contents")
	if !found {
		return nil, nil
	}
	switch o := obj.(type) {
	case types.IndirectRef:
		deref, err := d.ctx.Dereference(o)
		if err != nil {
			return nil, fmt.Errorf("dereference Contents: %w", err)
		}
		if arr, ok := deref.(types.Array); ok {
			return indirectRefs(arr), nil
		}
		return []types.IndirectRef{o}, nil
	case types.Array:
		return indirectRefs(o), nil
	}
	return nil, fmt.Errorf("unexpected Contents type %T", obj)
}

func indirectRefs(arr types.Array) []types.IndirectRef {
	var refs []types.IndirectRef
	for _, el := range arr {
		if ir, ok := el.(types.IndirectRef); ok {
			refs = append(refs, ir)
		}
	}
	return refs
}

// rewriteContentStream strips the named image's draw operations from
// one content stream object. Reports whether the stream changed.
func (d *Document) rewriteContentStream(ir types.IndirectRef, name string) (bool, error) {
	objNr := ir.ObjectNumber.Value()
	entry, ok := d.ctx.FindTableEntryLight(objNr)
	if !ok || entry == nil || entry.Object == nil {
		return false, fmt.Errorf("content stream obj %d not found", objNr)
	}
	sd, ok := entry.Object.(types.StreamDict)
	if !ok {
		return false, fmt.Errorf("content stream obj %d is %T, not a stream", objNr, entry.Object)
	}
	if err := sd.Decode(); err != nil {
		return false, fmt.Errorf("decode content stream obj %d: %w", objNr, err)
	}

	cleaned := stripImageOps(sd.Content, name)
	if bytes.Equal(cleaned, sd.Content) {
		return false, nil
	}

	sd.Content = cleaned
	sd.Raw = nil
	if err := sd.Encode(); err != nil {
		return false, fmt.Errorf("encode content stream obj %d: %w", objNr, err)
	}
	length := int64(len(sd.Raw))
	sd.StreamLength = &length
	sd.Update("Length", types.Integer(length))
	entry.Object = sd
	return true, nil
}

// DeleteImage removes the draw operations referencing objNr from the
// page's content stream and drops the page's resource entry. When no
// other page still references the object, the image object and its
// SMask are freed. Page dimensions, rotation and the ordering of the
// remaining content are untouched.
func (d *Document) DeleteImage(pageNr, objNr int) error {
	name, err := d.xObjectName(pageNr, objNr)
	if err != nil {
		return &EditError{PageNr: pageNr, ObjNr: objNr, Err: err}
	}
	if name == "" {
		return &EditError{PageNr: pageNr, ObjNr: objNr, Err: fmt.Errorf("object not referenced by page resources")}
	}

	streamRefs, err := d.contentStreamRefs(pageNr)
	if err != nil {
		return &EditError{PageNr: pageNr, ObjNr: objNr, Err: err}
	}
	for _, ref := range streamRefs {
		if _, err := d.rewriteContentStream(ref, name); err != nil {
			return &EditError{PageNr: pageNr, ObjNr: objNr, Err: err}
		}
	}

	xobjDict, err := d.xObjectDict(pageNr)
	if err != nil {
		return &EditError{PageNr: pageNr, ObjNr: objNr, Err: err}
	}
	if xobjDict != nil {
		xobjDict.Delete(name)
	}

	if len(d.pagesReferencing(objNr)) == 0 {
		d.freeImageObject(objNr)
	}
	return nil
}

// freeImageObject frees the image stream and any soft mask attached to
// it. Best effort: a missing or malformed object is simply left alone,
// the content stream no longer points at it either way.
func (d *Document) freeImageObject(objNr int) {
	if entry, ok := d.ctx.FindTableEntryLight(objNr); ok && entry != nil {
		if sd, isStream := entry.Object.(types.StreamDict); isStream {
			if smask, found := sd.Find("SMask"); found {
				if smaskRef, isRef := smask.(types.IndirectRef); isRef {
					d.ctx.FreeObject(smaskRef.ObjectNumber.Value())
				}
			}
		}
	}
	d.ctx.FreeObject(objNr)
}

// SaveAs writes the (possibly edited) document to path. The write goes
// through a temp file in the destination directory and an atomic
// rename, so a failed save leaves nothing behind.
func (d *Document) SaveAs(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dewm-*.pdf")
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if err := api.WriteContext(d.ctx, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &SaveError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &SaveError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &SaveError{Path: path, Err: err}
	}
	return nil
}

// Close releases the document. The pdfcpu context holds no OS
// resources, but callers treat a closed Document as invalid.
func (d *Document) Close() {
	d.ctx = nil
	d.data = nil
}

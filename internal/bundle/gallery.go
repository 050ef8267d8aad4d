package bundle

import (
	"bytes"
	"fmt"
	"image"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"

	"github.com/odyssey-erp/clientdoc/internal/invoices"
)

// Page geometry in points. Layout coordinates run bottom-up from the page
// foot and are flipped when drawn.
const (
	pageWidth      = 595.28
	pageHeight     = 841.89
	pageMargin     = 50.0
	maxImageHeight = 250.0
	imageSpacing   = 20.0
	galleryTitle   = "Packed Goods Images"
	maxPixelWidth  = 1600
)

const imageWidth = pageWidth - 2*pageMargin

// FileReader loads stored files by reference.
type FileReader interface {
	ReadFile(ref string) ([]byte, error)
}

// ComposeGallery lays packed images out on A4 pages, one caption per image.
// Images sharing a storage reference are drawn once. It returns nil when
// there is nothing to draw.
func ComposeGallery(images []invoices.PackedImage, files FileReader) ([]byte, error) {
	if len(images) == 0 {
		return nil, nil
	}
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(galleryTitle, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	y := pageHeight - pageMargin
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(pageMargin, pageHeight-y, galleryTitle)
	y -= 40

	seen := make(map[string]struct{}, len(images))
	for _, img := range images {
		if _, dup := seen[img.Image]; dup {
			continue
		}
		seen[img.Image] = struct{}{}

		if y < pageMargin+maxImageHeight+imageSpacing {
			pdf.AddPage()
			y = pageHeight - pageMargin - 20
		}

		jpeg, aspect, err := loadJPEG(files, img.Image)
		if err != nil {
			pdf.SetFont("Helvetica", "B", 12)
			pdf.Text(pageMargin, pageHeight-y, tr(fmt.Sprintf("Error loading image %d: %v", img.ID, err)))
			y -= 30
			continue
		}

		h := imageWidth * aspect
		if h > maxImageHeight {
			h = maxImageHeight
		}
		name := "img-" + strconv.FormatInt(img.ID, 10) + "-" + img.Image
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(jpeg))
		pdf.ImageOptions(name, pageMargin, pageHeight-y, imageWidth, h, false, opts, 0, "")

		notes := "N/A"
		if img.Notes != nil && *img.Notes != "" {
			notes = *img.Notes
		}
		pdf.SetFont("Helvetica", "", 10)
		pdf.Text(pageMargin, pageHeight-(y-h-10), tr("Notes: "+notes))

		y -= h + imageSpacing + 20
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("compose gallery: %w", err)
	}
	out := &bytes.Buffer{}
	if err := pdf.Output(out); err != nil {
		return nil, fmt.Errorf("compose gallery: %w", err)
	}
	return out.Bytes(), nil
}

// loadJPEG decodes any supported image, applies EXIF orientation, caps its
// pixel width and re-encodes it as JPEG. aspect is height over width.
func loadJPEG(files FileReader, ref string) ([]byte, float64, error) {
	data, err := files.ReadFile(ref)
	if err != nil {
		return nil, 0, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, err
	}
	img = downscale(img)
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, 0, fmt.Errorf("empty image")
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), float64(b.Dy()) / float64(b.Dx()), nil
}

func downscale(img image.Image) image.Image {
	if img.Bounds().Dx() <= maxPixelWidth {
		return img
	}
	return imaging.Resize(img, maxPixelWidth, 0, imaging.Lanczos)
}

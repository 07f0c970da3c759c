// imageprocessor.go - Page image preprocessing for better OCR accuracy

package processor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/disintegration/imaging"
)

// PreprocessPage decodes a base64 page image, scales it down to
// maxDimension on its longest side and applies adaptive enhancement. The
// result is always JPEG. Formats imaging cannot decode (webp) are returned
// unchanged with ok=false.
func PreprocessPage(data64, mimeType string, maxDimension int) (out []byte, outMime string, ok bool, err error) {
	raw, err := base64.StdEncoding.DecodeString(data64)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to decode page image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return raw, mimeType, false, nil
	}

	img = resizeToFit(img, maxDimension)

	// Apply adaptive processing based on quality score
	qualityScore := analyzeImageQuality(img)
	if qualityScore < 50 {
		img = applyAggressiveEnhancement(img)
	} else if qualityScore < 75 {
		img = applyStandardEnhancement(img)
	} else {
		img = applyLightEnhancement(img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		return nil, "", false, fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", true, nil
}

func resizeToFit(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		return img
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}
	if width > height {
		return imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
}

// analyzeImageQuality analyzes image and returns quality score (0-100)
func analyzeImageQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var totalBrightness float64
	var minBrightness float64 = 255
	var maxBrightness float64 = 0
	pixelCount := 0

	// Sample pixels (every 10th pixel for performance)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0

			totalBrightness += brightness
			if brightness < minBrightness {
				minBrightness = brightness
			}
			if brightness > maxBrightness {
				maxBrightness = brightness
			}
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return 0
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	// Ideal: avgBrightness = 128, contrast = 200+
	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	// Weight: 40% brightness, 60% contrast
	return (brightnessScore * 0.4) + (contrastScore * 0.6)
}

// applyLightEnhancement for good quality images
func applyLightEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 2.0)
	result = imaging.AdjustContrast(result, 30)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 20)
	return imaging.AdjustGamma(result, 1.05)
}

// applyStandardEnhancement for medium quality images
func applyStandardEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 3.0)
	result = imaging.AdjustContrast(result, 45)
	result = imaging.AdjustBrightness(result, 15)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 35)
	return imaging.AdjustGamma(result, 1.15)
}

// applyAggressiveEnhancement for poor quality scans and phone photos
func applyAggressiveEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 4.0)
	result = imaging.AdjustContrast(result, 60)
	result = imaging.AdjustBrightness(result, 25)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 55)
	result = imaging.AdjustGamma(result, 1.3)
	// blur + sharpen removes speckle without softening digits
	result = imaging.Blur(result, 0.5)
	result = imaging.Sharpen(result, 2.5)
	return imaging.AdjustContrast(result, 20)
}

// Package units provides shared constants and conversions for memory sizes.
package units

import "fmt"

// BytesPerGiB is the binary gigabyte used for every memory estimate.
const BytesPerGiB = 1 << 30

// BytesToGiB converts a byte count to binary gigabytes.
func BytesToGiB(bytes float64) float64 {
	return bytes / BytesPerGiB
}

// GiBToBytes converts binary gigabytes to a byte count.
func GiBToBytes(gib float64) float64 {
	return gib * BytesPerGiB
}

// PixelsToGiB returns the memory needed to hold pixels samples of
// bytesPerPixel bytes each.
func PixelsToGiB(pixels float64, bytesPerPixel int) float64 {
	return BytesToGiB(pixels * float64(bytesPerPixel))
}

// FormatGiB renders a size the way the operator output prints it ("1.23 GB").
func FormatGiB(gib float64) string {
	return fmt.Sprintf("%.2f GB", gib)
}

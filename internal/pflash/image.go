// Package pflash builds the raw flash images attached to the emulated
// machine as a pflash drive.
//
// Layout: the whole bank starts erased (0xFF), the ASCII marker "PFLA" sits
// at offset 0, and on x86 the boot ROM occupies the tail of the bank so the
// reset vector at the top of the 4GiB window lands inside it.
package pflash

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tinyrange/readpflash/internal/arch"
)

const (
	Magic  = "PFLA"
	Erased = 0xFF
)

var (
	ErrFirmwareTooLarge = errors.New("firmware too large for flash image")
	ErrBadImage         = errors.New("invalid flash image")
)

// TooLargeError reports a firmware blob that would overlap the marker.
type TooLargeError struct {
	Arch         arch.Architecture
	FirmwareSize int
	ImageSize    int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("firmware (%d bytes) too large for %d-byte %s pflash image (limit %d)",
		e.FirmwareSize, e.ImageSize, e.Arch, e.ImageSize-len(Magic))
}

func (e *TooLargeError) Is(target error) bool { return target == ErrFirmwareTooLarge }

// Build returns the image for p. firmware is embedded at the tail of the
// image when non-nil; callers pass it only for profiles whose data bank is
// also the boot bank.
func Build(p arch.Profile, firmware []byte) ([]byte, error) {
	size := p.FlashSize
	if size < len(Magic) {
		return nil, fmt.Errorf("%w: %s flash size %d is smaller than the marker", ErrBadImage, p.Name, size)
	}

	if firmware != nil && len(firmware) > size-len(Magic) {
		return nil, &TooLargeError{Arch: p.Name, FirmwareSize: len(firmware), ImageSize: size}
	}

	img := bytes.Repeat([]byte{Erased}, size)
	copy(img, Magic)

	if firmware != nil {
		copy(img[size-len(firmware):], firmware)
	}

	return img, nil
}

// Verify checks that img has the exact bank size for p and carries the
// marker.
func Verify(p arch.Profile, img []byte) error {
	if len(img) != p.FlashSize {
		return fmt.Errorf("%w: size %d, %s requires exactly %d", ErrBadImage, len(img), p.Name, p.FlashSize)
	}
	if !bytes.Equal(img[:len(Magic)], []byte(Magic)) {
		return fmt.Errorf("%w: marker %q, want %q", ErrBadImage, img[:len(Magic)], Magic)
	}
	return nil
}

package imaging

import (
	"fmt"
	"net/http"

	"github.com/Yates-Labs/storyimager/internal/storyerr"
)

// Validation constraint names reported on storyerr.Error.Constraint.
const (
	ConstraintCountEmpty    = "count_empty"
	ConstraintCountExceeded = "count_exceeded"
	ConstraintFormat        = "format"
	ConstraintEmptyData     = "empty_data"
	ConstraintSize          = "size"
	ConstraintContent       = "content_mismatch"
	ConstraintDecode        = "decode"
)

const (
	DefaultMaxCount = 10
	DefaultMaxSize  = 20 << 20
)

// Validator enforces count, format and size rules on a batch of assets.
// It is read-only after construction and safe for concurrent use.
type Validator struct {
	MaxCount int
	MaxSize  int64

	// VerifyContent additionally sniffs the bytes and rejects assets whose
	// content does not match the declared format.
	VerifyContent bool
}

// NewValidator returns a Validator, substituting defaults for non-positive limits.
func NewValidator(maxCount int, maxSize int64) *Validator {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Validator{MaxCount: maxCount, MaxSize: maxSize}
}

// Validate checks assets in order and stops at the first broken rule.
func (v *Validator) Validate(assets []Asset) ([]Image, error) {
	if len(assets) == 0 {
		return nil, storyerr.Validation(ConstraintCountEmpty, -1, "at least one image is required")
	}
	if len(assets) > v.MaxCount {
		return nil, storyerr.Validation(ConstraintCountExceeded, -1,
			fmt.Sprintf("%d images supplied, at most %d allowed", len(assets), v.MaxCount))
	}

	images := make([]Image, 0, len(assets))
	for i, a := range assets {
		format, ok := ParseFormat(a.MIMEType)
		if !ok {
			return nil, storyerr.Validation(ConstraintFormat, i,
				fmt.Sprintf("unsupported format %q (use JPEG, PNG or WEBP)", a.MIMEType))
		}
		if len(a.Data) == 0 {
			return nil, storyerr.Validation(ConstraintEmptyData, i, "file is empty")
		}
		if size := a.size(); size > v.MaxSize {
			return nil, storyerr.Validation(ConstraintSize, i,
				fmt.Sprintf("%s exceeds the %s limit", formatBytes(size), formatBytes(v.MaxSize)))
		}
		if v.VerifyContent {
			if sniffed, _ := ParseFormat(http.DetectContentType(a.Data)); sniffed != format {
				return nil, storyerr.Validation(ConstraintContent, i,
					fmt.Sprintf("content does not look like %s", format))
			}
		}
		images = append(images, newImage(a.Name, format, a.Data))
	}

	return images, nil
}

func formatBytes(n int64) string {
	const mb = 1 << 20
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}

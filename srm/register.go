package srm

import (
	"io"

	"github.com/lucasjlepore/srm-analyzer/ridefile"
)

const (
	FormatTag         = "srm"
	FormatDescription = "SRM training files"
)

// Reader adapts the decoder to ridefile.Reader.
type Reader struct {
	Options []Option
}

func (r Reader) OpenRide(in io.Reader) (*ridefile.Ride, []string, error) {
	ride := ridefile.New()
	warnings, err := Decode(in, ride, r.Options...)
	if err != nil {
		return nil, nil, err
	}
	return ride, warnings, nil
}

// Register adds the SRM reader to reg under the "srm" tag.
func Register(reg *ridefile.Registry, opts ...Option) error {
	return reg.Register(FormatTag, FormatDescription, Reader{Options: opts})
}

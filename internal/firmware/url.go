package firmware

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rackops/imdcfg/internal/validate"
)

// ErrInvalidURL is returned for firmware URLs that cannot be split into a
// download location and a file name.
var ErrInvalidURL = errors.New("invalid firmware URL")

// Suffix is appended to the firmware image name inside the archive.
const Suffix = ".firmware"

// URLInfo is a firmware download URL taken apart.
//
// For https://host/docs/geist-i03-6_1_2-04302024.zip:
//
//	URLPath          https://host/docs/
//	Filename         geist-i03-6_1_2-04302024.zip
//	BareFilename     geist-i03-6_1_2-04302024
//	Extension        zip
//	FirmwareFilename geist-i03-6_1_2.firmware
type URLInfo struct {
	URL              string `json:"url"`
	URLPath          string `json:"url_path"`
	Filename         string `json:"filename"`
	FirmwareFilename string `json:"firmware_filename"`
	BareFilename     string `json:"bare_filename"`
	Extension        string `json:"extension"`
}

// ParseURL splits a firmware URL. The last path segment must be a file name
// with an extension.
func ParseURL(raw string) (URLInfo, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return URLInfo{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return URLInfo{}, fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidURL, raw)
	}

	filename := u.Path[strings.LastIndex(u.Path, "/")+1:]
	dot := strings.LastIndex(filename, ".")
	if dot <= 0 || dot == len(filename)-1 {
		return URLInfo{}, fmt.Errorf("%w: no file name in %q", ErrInvalidURL, raw)
	}

	full := u.String()
	base := *u
	base.RawQuery, base.Fragment = "", ""
	dir := strings.TrimSuffix(base.String(), filename)

	bare := filename[:dot]
	return URLInfo{
		URL:              full,
		URLPath:          dir,
		Filename:         filename,
		FirmwareFilename: firmwareName(bare),
		BareFilename:     bare,
		Extension:        filename[dot+1:],
	}, nil
}

// firmwareName drops the trailing "-<date>" field of an archive name and
// anything after the first remaining dot.
func firmwareName(bare string) string {
	name := bare
	if i := strings.LastIndex(name, "-"); i > 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name + Suffix
}

// Version returns the firmware version encoded in the image name, with
// underscores read as dots: geist-i03-6_1_2.firmware is 6.1.2.
func (i URLInfo) Version() (string, bool) {
	stem := strings.TrimSuffix(i.FirmwareFilename, Suffix)
	v := strings.ReplaceAll(stem[strings.LastIndex(stem, "-")+1:], "_", ".")
	if !validate.IsValidFirmwareVersion(v) {
		return "", false
	}
	return v, true
}

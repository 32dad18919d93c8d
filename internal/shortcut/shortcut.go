// Package shortcut reads and writes Windows shell link (.lnk) files.
//
// Only the subset needed to point at a local file is produced: a header, a
// LinkInfo structure carrying the local base path, and an optional working
// directory string. Files written here open in Explorer and can be read back
// to check which target they refer to.
package shortcut

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
)

// ShowCommand is the window state the target is launched in.
type ShowCommand uint32

const (
	ShowNormal      ShowCommand = 1
	ShowMaximized   ShowCommand = 3
	ShowMinNoActive ShowCommand = 7
)

const (
	headerSize = 0x4C

	flagHasLinkTargetIDList = 0x00000001
	flagHasLinkInfo         = 0x00000002
	flagHasName             = 0x00000004
	flagHasRelativePath     = 0x00000008
	flagHasWorkingDir       = 0x00000010
	flagHasArguments        = 0x00000020
	flagHasIconLocation     = 0x00000040
	flagIsUnicode           = 0x00000080

	fileAttributeNormal = 0x00000080

	linkInfoHeaderSize       = 0x24
	linkInfoVolumeAndBase    = 0x00000001
	volumeIDHeaderSize       = 0x10
	driveFixed               = 3
	minLinkInfoHeaderUnicode = 0x24
)

var linkCLSID = [16]byte{0x01, 0x14, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46}

// Link is the decoded content of a shortcut.
type Link struct {
	Target      string
	WorkingDir  string
	ShowCommand ShowCommand
}

type header struct {
	HeaderSize     uint32
	CLSID          [16]byte
	LinkFlags      uint32
	FileAttributes uint32
	CreationTime   uint64
	AccessTime     uint64
	WriteTime      uint64
	FileSize       uint32
	IconIndex      int32
	ShowCommand    uint32
	HotKey         uint16
	Reserved1      uint16
	Reserved2      uint32
	Reserved3      uint32
}

// Write creates a new shortcut file at path. It fails if path exists.
func Write(path string, link Link) error {
	var buf bytes.Buffer
	if err := Encode(&buf, link); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to create shortcut %s", path)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		_ = os.Remove(path)
		return errors.Wrapf(err, "failed to write shortcut %s", path)
	}
	return f.Close()
}

// Read decodes the shortcut file at path.
func Read(path string) (Link, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Link{}, errors.Wrapf(err, "failed to read shortcut %s", path)
	}
	return Decode(data)
}

// Encode serializes link in shell link binary format.
func Encode(w io.Writer, link Link) error {
	if link.Target == "" {
		return errors.New("shortcut target is empty")
	}
	show := link.ShowCommand
	if show == 0 {
		show = ShowNormal
	}

	flags := uint32(flagHasLinkInfo | flagIsUnicode)
	if link.WorkingDir != "" {
		flags |= flagHasWorkingDir
	}

	var buf bytes.Buffer
	h := header{
		HeaderSize:     headerSize,
		CLSID:          linkCLSID,
		LinkFlags:      flags,
		FileAttributes: fileAttributeNormal,
		ShowCommand:    uint32(show),
	}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return errors.Wrap(err, "failed to encode shortcut header")
	}

	buf.Write(encodeLinkInfo(link.Target))

	if link.WorkingDir != "" {
		writeCountedString(&buf, link.WorkingDir)
	}

	// terminal extra data block
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))

	_, err := w.Write(buf.Bytes())
	return errors.Wrap(err, "failed to write shortcut")
}

func encodeLinkInfo(target string) []byte {
	var volume bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&volume, le, uint32(volumeIDHeaderSize+1))
	_ = binary.Write(&volume, le, uint32(driveFixed))
	_ = binary.Write(&volume, le, uint32(0))
	_ = binary.Write(&volume, le, uint32(volumeIDHeaderSize))
	volume.WriteByte(0)

	ansiBase := append(toANSI(target), 0)
	ansiSuffix := []byte{0}
	unicodeBase := toUTF16Z(target)
	unicodeSuffix := []byte{0, 0}

	volumeOffset := uint32(linkInfoHeaderSize)
	baseOffset := volumeOffset + uint32(volume.Len())
	suffixOffset := baseOffset + uint32(len(ansiBase))
	unicodeBaseOffset := suffixOffset + uint32(len(ansiSuffix))
	unicodeSuffixOffset := unicodeBaseOffset + uint32(len(unicodeBase))
	total := unicodeSuffixOffset + uint32(len(unicodeSuffix))

	var info bytes.Buffer
	for _, v := range []uint32{
		total,
		linkInfoHeaderSize,
		linkInfoVolumeAndBase,
		volumeOffset,
		baseOffset,
		0,
		suffixOffset,
		unicodeBaseOffset,
		unicodeSuffixOffset,
	} {
		_ = binary.Write(&info, le, v)
	}
	info.Write(volume.Bytes())
	info.Write(ansiBase)
	info.Write(ansiSuffix)
	info.Write(unicodeBase)
	info.Write(unicodeSuffix)
	return info.Bytes()
}

// Decode parses a shell link. Only the target path, the working directory and
// the show command are extracted.
func Decode(data []byte) (Link, error) {
	r := bytes.NewReader(data)

	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Link{}, errors.Wrap(err, "truncated shortcut header")
	}
	if h.HeaderSize != headerSize || h.CLSID != linkCLSID {
		return Link{}, errors.New("not a shell link")
	}

	link := Link{ShowCommand: ShowCommand(h.ShowCommand)}

	if h.LinkFlags&flagHasLinkTargetIDList != 0 {
		var size uint16
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return Link{}, errors.Wrap(err, "truncated id list")
		}
		if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
			return Link{}, errors.Wrap(err, "truncated id list")
		}
	}

	if h.LinkFlags&flagHasLinkInfo != 0 {
		start := len(data) - r.Len()
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return Link{}, errors.Wrap(err, "truncated link info")
		}
		if size < 0x1C || start+int(size) > len(data) {
			return Link{}, errors.New("invalid link info size")
		}
		target, err := decodeLinkInfo(data[start : start+int(size)])
		if err != nil {
			return Link{}, err
		}
		link.Target = target
		if _, err := r.Seek(int64(start+int(size)), io.SeekStart); err != nil {
			return Link{}, err
		}
	}

	unicode := h.LinkFlags&flagIsUnicode != 0
	for _, flag := range []uint32{flagHasName, flagHasRelativePath, flagHasWorkingDir, flagHasArguments, flagHasIconLocation} {
		if h.LinkFlags&flag == 0 {
			continue
		}
		value, err := readCountedString(r, unicode)
		if err != nil {
			return Link{}, err
		}
		if flag == flagHasWorkingDir {
			link.WorkingDir = value
		}
	}

	if link.Target == "" {
		return Link{}, errors.New("shortcut has no local target")
	}
	return link, nil
}

func decodeLinkInfo(info []byte) (string, error) {
	le := binary.LittleEndian
	hdrSize := le.Uint32(info[4:8])
	flags := le.Uint32(info[8:12])
	if flags&linkInfoVolumeAndBase == 0 {
		return "", nil
	}

	if hdrSize >= minLinkInfoHeaderUnicode && len(info) >= minLinkInfoHeaderUnicode {
		baseOff := le.Uint32(info[28:32])
		suffixOff := le.Uint32(info[32:36])
		if baseOff != 0 && int(baseOff) < len(info) {
			base := fromUTF16Z(info[baseOff:])
			var suffix string
			if suffixOff != 0 && int(suffixOff) < len(info) {
				suffix = fromUTF16Z(info[suffixOff:])
			}
			return base + suffix, nil
		}
	}

	baseOff := le.Uint32(info[16:20])
	suffixOff := le.Uint32(info[24:28])
	if int(baseOff) >= len(info) || int(suffixOff) >= len(info) {
		return "", errors.New("invalid link info offsets")
	}
	return cString(info[baseOff:]) + cString(info[suffixOff:]), nil
}

func writeCountedString(buf *bytes.Buffer, s string) {
	units := utf16.Encode([]rune(s))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(units)))
	_ = binary.Write(buf, binary.LittleEndian, units)
}

func readCountedString(r *bytes.Reader, unicode bool) (string, error) {
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return "", errors.Wrap(err, "truncated string data")
	}
	if !unicode {
		raw := make([]byte, count)
		if _, err := io.ReadFull(r, raw); err != nil {
			return "", errors.Wrap(err, "truncated string data")
		}
		return string(raw), nil
	}
	units := make([]uint16, count)
	if err := binary.Read(r, binary.LittleEndian, units); err != nil {
		return "", errors.Wrap(err, "truncated string data")
	}
	return string(utf16.Decode(units)), nil
}

func toANSI(s string) []byte {
	var b strings.Builder
	for _, r := range s {
		if r > 0x7f {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return []byte(b.String())
}

func toUTF16Z(s string) []byte {
	units := append(utf16.Encode([]rune(s)), 0)
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func fromUTF16Z(b []byte) string {
	var units []uint16
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

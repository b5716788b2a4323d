package tiff

// Baseline and extension tags (TIFF 6.0 p. 28-41, TIFF/EP, DNG 1.4).
const (
	tagNewSubfileType        = 254
	tagImageWidth            = 256
	tagImageLength           = 257
	tagBitsPerSample         = 258
	tagCompression           = 259
	tagPhotometric           = 262
	tagImageDescription      = 270
	tagStripOffsets          = 273
	tagOrientation           = 274
	tagSamplesPerPixel       = 277
	tagRowsPerStrip          = 278
	tagStripByteCounts       = 279
	tagPredictor             = 317
	tagTileWidth             = 322
	tagTileLength            = 323
	tagTileOffsets           = 324
	tagTileByteCounts        = 325
	tagSubIFDs               = 330
	tagSampleFormat          = 339
	tagJPEGInterchange       = 513
	tagJPEGInterchangeLength = 514
	tagXMP                   = 700
	tagCFARepeatPatternDim   = 33421
	tagCFAPattern            = 33422
	tagExifIFD               = 34665
	tagICCProfile            = 34675
	tagTIFFEPStandardID      = 37398
	tagStonits               = 37439
	tagDNGVersion            = 50706
	tagDNGBackwardVersion    = 50707
	tagLinearizationTable    = 50712
	tagBlackLevel            = 50714
	tagWhiteLevel            = 50717
	tagColorMatrix1          = 50721
	tagColorMatrix2          = 50722
	tagAsShotNeutral         = 50728
)

// Photometric interpretation values (p. 37 of the spec and supplements).
const (
	PhotometricWhiteIsZero = 0
	PhotometricBlackIsZero = 1
	PhotometricRGB         = 2
	PhotometricPaletted    = 3
	PhotometricTransMask   = 4
	PhotometricCMYK        = 5
	PhotometricYCbCr       = 6
	PhotometricCIELab      = 8
	PhotometricCFA         = 32803 // DNG colour filter array.
	PhotometricLogL        = 32844 // GrayScale - CIE Log2(L).
	PhotometricLogLuv      = 32845 // Color - CIE Log2(L) (u',v').
	PhotometricLinearRaw   = 34892
)

// NewSubfileType bits.
const (
	SubfileReduced = 1 << 0
	SubfilePage    = 1 << 1
	SubfileMask    = 1 << 2
)

// Info is the structural summary of one image directory, enough to route
// it to a pixel decoder and to harvest its metadata.
type Info struct {
	Offset int64

	Width, Height   int
	BitsPerSample   int
	SamplesPerPixel int
	SampleFormat    int
	Photometric     int
	Compression     int
	SubfileType     int64
	Orientation     int
	Description     string

	SubIFDs []int64
	ExifIFD int64

	ICC     []byte
	XMP     []byte
	Preview []byte // JPEGInterchangeFormat stream, DNG/TIFF-EP previews.

	DNGVersion []int64 // nil outside DNG.
	EPStandard bool    // TIFF/EPStandardID present.
	CFA        bool
}

// HDR reports whether the directory holds one of the high dynamic range
// encodings the baseline readers have no notion of.
func (i *Info) HDR() bool {
	switch i.Photometric {
	case PhotometricLogL, PhotometricLogLuv:
		return true
	case PhotometricRGB:
		// SampleFormat 3 is IEEE floating point.
		return i.SampleFormat == 3 && i.BitsPerSample == 32
	case PhotometricCFA:
		return true
	}
	return false
}

// PageOffsets walks the top-level directory chain and returns the stream
// offset of every page.
func PageOffsets(buf []byte) ([]int64, error) {
	c, err := NewCursor(buf)
	if err != nil {
		return nil, err
	}

	var offsets []int64
	offset := int64(c.order.Uint32(buf[4:]))
	for offset != 0 {
		if offset < 0 || offset+2 > int64(len(buf)) {
			return offsets, TruncatedError("IFD offset")
		}
		// Guard against directory loops.
		for _, seen := range offsets {
			if seen == offset {
				return offsets, FormatError("circular IFD chain")
			}
		}
		offsets = append(offsets, offset)

		entries := int64(c.order.Uint16(buf[offset:]))
		next := offset + 2 + entries*ifdLen
		if next+4 > int64(len(buf)) {
			return offsets, TruncatedError("IFD entries")
		}
		offset = int64(c.order.Uint32(buf[next:]))
	}
	return offsets, nil
}

// ParseInfo summarizes the directory at the given stream offset.
func ParseInfo(buf []byte, offset int64) (*Info, error) {
	c, err := NewCursor(buf)
	if err != nil {
		return nil, err
	}
	sub, err := c.SubIFD(offset)
	if err != nil {
		return nil, err
	}

	info := &Info{Offset: offset, SamplesPerPixel: 1, Orientation: 1}
	var jpegOffset, jpegLength int64
	var e Entry
	for {
		ok, err := sub.NextEntry(&e)
		if err != nil {
			return info, err
		}
		if !ok {
			break
		}

		switch e.Tag {
		case tagImageWidth:
			info.Width = int(entryInt(&e))
		case tagImageLength:
			info.Height = int(entryInt(&e))
		case tagBitsPerSample:
			info.BitsPerSample = int(entryInt(&e))
		case tagSamplesPerPixel:
			info.SamplesPerPixel = int(entryInt(&e))
		case tagSampleFormat:
			info.SampleFormat = int(entryInt(&e))
		case tagPhotometric:
			info.Photometric = int(entryInt(&e))
			info.CFA = info.Photometric == PhotometricCFA
		case tagCompression:
			info.Compression = int(entryInt(&e))
		case tagNewSubfileType:
			info.SubfileType = entryInt(&e)
		case tagOrientation:
			if o := entryInt(&e); o >= 1 && o <= 8 {
				info.Orientation = int(o)
			}
		case tagImageDescription:
			info.Description = entryString(&e)
		case tagSubIFDs:
			for {
				if v, err := e.Integer(); err == nil {
					info.SubIFDs = append(info.SubIFDs, v)
				}
				if !e.NextValue() {
					break
				}
			}
		case tagExifIFD:
			info.ExifIFD = entryInt(&e)
		case tagICCProfile:
			info.ICC = e.Bytes()
		case tagXMP:
			info.XMP = e.Bytes()
		case tagTIFFEPStandardID:
			info.EPStandard = true
		case tagDNGVersion:
			for {
				if v, err := e.Integer(); err == nil {
					info.DNGVersion = append(info.DNGVersion, v)
				}
				if !e.NextValue() {
					break
				}
			}
		case tagJPEGInterchange:
			jpegOffset = entryInt(&e)
		case tagJPEGInterchangeLength:
			jpegLength = entryInt(&e)
		}
	}

	if jpegOffset > 0 && jpegLength > 0 &&
		jpegOffset+jpegLength <= int64(len(buf)) {
		info.Preview = buf[jpegOffset : jpegOffset+jpegLength]
	}
	return info, nil
}

func entryInt(e *Entry) int64 {
	v, _ := e.Integer()
	return v
}

func entryString(e *Entry) string {
	b := e.Bytes()
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

package pointcloud

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/svo/logging"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// NewFromFile returns a pointcloud read in from the given file.
func NewFromFile(fn string, logger logging.Logger) (PointCloud, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer goutils.UncheckedErrorFunc(f.Close)
		cloud, err := ReadPCD(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", fn)
		}
		logger.Debugw("read pcd file", "path", fn, "points", cloud.Size())
		return cloud, nil
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// pointValueDataTag encodes if the point has value data.
const pointValueDataTag = "rc|pv"

// Float64 values beyond these bounds cannot be voxelized without losing integer precision.
const (
	maxPreciseFloat64 = float64(1 << 53)
	minPreciseFloat64 = -maxPreciseFloat64
)

// NewFromLASFile returns a point cloud from reading a LAS file. If any
// lossiness of points could occur from reading it in, it's reported but is not
// an error.
func NewFromLASFile(fn string, logger logging.Logger) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(lf.Close)

	var hasValue bool
	var valueData []byte
	for _, d := range lf.VlrData {
		if d.Description == pointValueDataTag {
			hasValue = true
			valueData = d.BinaryData
			break
		}
	}
	if hasValue && len(valueData) < lf.Header.NumberPoints*8 {
		return nil, errors.Errorf("value record holds %d bytes for %d points", len(valueData), lf.Header.NumberPoints)
	}

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()

		x, y, z := data.X, data.Y, data.Z
		if x < minPreciseFloat64 || x > maxPreciseFloat64 ||
			y < minPreciseFloat64 || y > maxPreciseFloat64 ||
			z < minPreciseFloat64 || z > maxPreciseFloat64 {
			logger.Warnw("potential floating point lossiness for LAS point",
				"point", data, "range", fmt.Sprintf("[%f,%f]", minPreciseFloat64, maxPreciseFloat64))
		}

		v := r3.Vector{X: x, Y: y, Z: z}
		dd := NewBasicData()
		if lf.Header.PointFormatID == 2 && p.RgbData() != nil {
			r := uint8(p.RgbData().Red / 256)
			g := uint8(p.RgbData().Green / 256)
			b := uint8(p.RgbData().Blue / 256)
			dd.SetColor(color.NRGBA{r, g, b, 255})
		}

		if hasValue {
			dd.SetLabel(int(binary.LittleEndian.Uint64(valueData[i*8 : (i*8)+8])))
		}

		if err := pc.Set(v, dd); err != nil {
			return nil, err
		}
	}
	logger.Debugw("read las file", "path", fn, "points", pc.Size(), "format", lf.Header.PointFormatID)
	return pc, nil
}

// WriteToLASFile writes the point cloud out to a LAS file.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	meta := cloud.MetaData()

	pointFormatID := 0
	if meta.HasColor {
		pointFormatID = 2
	}
	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: byte(pointFormatID),
	}); err != nil {
		return
	}

	var pVals []int
	if meta.HasLabel {
		pVals = make([]int, 0, cloud.Size())
	}
	var lastErr error
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		var lp lidario.LasPointer
		pr0 := &lidario.PointRecord0{
			// floating point lossiness validated/warned from set/load
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			ScanAngle:     0,
			UserData:      0,
			PointSourceID: 1,
		}
		lp = pr0

		if meta.HasColor {
			red, green, blue := 255, 255, 255
			if d != nil && d.HasColor() {
				r, g, b := d.RGB255()
				red, green, blue = int(r), int(g), int(b)
			}
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(red * 256),
					Green: uint16(green * 256),
					Blue:  uint16(blue * 256),
				},
			}
		}
		if meta.HasLabel {
			if d != nil && d.HasLabel() {
				pVals = append(pVals, d.Label())
			} else {
				pVals = append(pVals, 0)
			}
		}
		if lerr := lf.AddLasPoint(lp); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
		return
	}
	if meta.HasLabel {
		var buf bytes.Buffer
		for _, v := range pVals {
			bytes := make([]byte, 8)
			binary.LittleEndian.PutUint64(bytes, uint64(v))
			buf.Write(bytes)
		}
		if err = lf.AddVLR(lidario.VLR{
			UserID:                  "",
			Description:             pointValueDataTag,
			BinaryData:              buf.Bytes(),
			RecordLengthAfterHeader: buf.Len(),
		}); err != nil {
			return
		}
	}

	// nolint:nakedret
	return
}

func colorToPCDInt(pt Data) int {
	if pt == nil || !pt.HasColor() {
		return 255 << 16
	}

	r, g, b := pt.RGB255()
	x := 0

	x |= (int(r) << 16)
	x |= (int(g) << 8)
	x |= (int(b) << 0)
	return x
}

func pcdIntToColor(c int) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{r, g, b, 255}
}

// ToPCD writes the cloud in the PCD v0.7 format. Colored clouds carry an rgb field packed as an
// integer.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	fields := pcdPointOnly
	if cloud.MetaData().HasColor {
		fields = pcdPointColor
	}

	var err error
	_, err = fmt.Fprintf(out, "VERSION .7\n")
	if err != nil {
		return err
	}
	switch fields {
	case pcdPointColor:
		_, err = fmt.Fprintf(out, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	default:
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
	case PCDCompressed:
		_, err = fmt.Fprintf(out, "DATA binary_compressed\n")
	default:
		return errors.Errorf("unknown pcd output type %d", outputType)
	}
	if err != nil {
		return err
	}
	if outputType == PCDCompressed {
		return writePCDCompressed(cloud, out, fields)
	}
	return writePCDData(cloud, out, outputType, fields)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType, fields pcdFieldType) error {
	var err error
	buf := make([]byte, 4*fields.count())
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(pos.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(pos.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pos.Z)))
			if fields == pcdPointColor {
				binary.LittleEndian.PutUint32(buf[12:], uint32(colorToPCDInt(d)))
			}
			_, err = out.Write(buf)
		default:
			if fields == pcdPointColor {
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", pos.X, pos.Y, pos.Z, colorToPCDInt(d))
			} else {
				_, err = fmt.Fprintf(out, "%f %f %f\n", pos.X, pos.Y, pos.Z)
			}
		}
		return err == nil
	})
	return err
}

// writePCDCompressed stores every field contiguously (all x, then all y, ...) and LZF compresses
// the result, prefixed by the compressed and uncompressed sizes.
func writePCDCompressed(cloud PointCloud, out io.Writer, fields pcdFieldType) error {
	n := cloud.Size()
	raw := make([]byte, 4*fields.count()*n)
	i := 0
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(pos.X)))
		binary.LittleEndian.PutUint32(raw[4*(n+i):], math.Float32bits(float32(pos.Y)))
		binary.LittleEndian.PutUint32(raw[4*(2*n+i):], math.Float32bits(float32(pos.Z)))
		if fields == pcdPointColor {
			binary.LittleEndian.PutUint32(raw[4*(3*n+i):], uint32(colorToPCDInt(d)))
		}
		i++
		return true
	})

	compressed := make([]byte, len(raw)+len(raw)/16+64)
	size, err := lzf.Compress(raw, compressed)
	if err != nil {
		return errors.Wrap(err, "compressing pcd data")
	}
	var sizes [8]byte
	binary.LittleEndian.PutUint32(sizes[:4], uint32(size))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := out.Write(sizes[:]); err != nil {
		return err
	}
	_, err = out.Write(compressed[:size])
	return err
}

type pcdFieldType int

const (
	pcdPointOnly pcdFieldType = iota
	pcdPointColor
	// pcdPointLabel carries a label field that becomes the point's value.
	pcdPointLabel
)

func (f pcdFieldType) count() int {
	if f == pcdPointOnly {
		return 3
	}
	return 4
}

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdHeader struct {
	fields pcdFieldType
	size   []uint64
	typ    []pcdValType
	count  []uint64
	width  uint64
	height uint64
	// viewpoint is the sensor pose: a translation then a rotation
	translation r3.Vector
	rotation    quat.Number
	points      uint64
	data        PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, pcdHeader *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch strings.Join(tokens, " ") {
		case "x y z":
			pcdHeader.fields = pcdPointOnly
		case "x y z rgb":
			pcdHeader.fields = pcdPointColor
		case "x y z label":
			pcdHeader.fields = pcdPointLabel
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != pcdHeader.fields.count() {
			return errors.New("unexpected number of fields in SIZE line")
		}
		pcdHeader.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			pcdHeader.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
		}
	case "TYPE":
		if len(tokens) != pcdHeader.fields.count() {
			return errors.New("unexpected number of fields in TYPE line")
		}
		pcdHeader.typ = make([]pcdValType, len(tokens))
		for i, token := range tokens {
			typ := pcdValType(token)
			if err := checkPCDFieldType(typ, pcdHeader.size[i]); err != nil {
				return err
			}
			pcdHeader.typ[i] = typ
		}
	case "COUNT":
		if len(tokens) != pcdHeader.fields.count() {
			return errors.New("unexpected number of fields in COUNT line")
		}
		pcdHeader.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			pcdHeader.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid COUNT field %s: %s", token, err)
			}
			if pcdHeader.count[i] != 1 {
				return errors.Errorf("unsupported COUNT %d, only single element fields are read", pcdHeader.count[i])
			}
		}
	case "WIDTH":
		pcdHeader.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid WIDTH field %s: %s", value, err)
		}
	case "HEIGHT":
		pcdHeader.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid HEIGHT field %s: %s", value, err)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		viewpoint := [7]float64{}
		for i, token := range tokens {
			viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Errorf("invalid VIEWPOINT field %s: %s", token, err)
			}
		}
		pcdHeader.translation = r3.Vector{X: viewpoint[0], Y: viewpoint[1], Z: viewpoint[2]}
		rotation := quat.Number{Real: viewpoint[3], Imag: viewpoint[4], Jmag: viewpoint[5], Kmag: viewpoint[6]}
		norm := quat.Abs(rotation)
		if norm == 0 {
			return errors.New("VIEWPOINT rotation is a zero quaternion")
		}
		pcdHeader.rotation = quat.Scale(1/norm, rotation)
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Errorf("invalid POINTS field %s: %s", value, err)
		}
		if pcdHeader.height != 0 && pcdHeader.width > math.MaxUint64/pcdHeader.height {
			return errors.Errorf("WIDTH %d times HEIGHT %d overflows", pcdHeader.width, pcdHeader.height)
		}
		if points != pcdHeader.width*pcdHeader.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, pcdHeader.width*pcdHeader.height)
		}
		pcdHeader.points = points
	case "DATA":
		switch value {
		case "ascii":
			pcdHeader.data = PCDAscii
		case "binary":
			pcdHeader.data = PCDBinary
		case "binary_compressed":
			pcdHeader.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data type %q", value)
		}
	}

	return nil
}

func checkPCDFieldType(typ pcdValType, size uint64) error {
	switch typ {
	case pcdValFloat:
		if size == 4 || size == 8 {
			return nil
		}
	case pcdValInt, pcdValUInt:
		if size == 1 || size == 2 || size == 4 {
			return nil
		}
	}
	return errors.Errorf("unsupported pcd field type %s of size %d", typ, size)
}

// ReadPCD reads a PCD v0.7 stream in any of its three encodings. Points are moved from the
// sensor frame given by VIEWPOINT into the world frame.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	header := pcdHeader{rotation: quat.Number{Real: 1}}
	in := bufio.NewReader(inRaw)
	var line string
	var err error
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err = in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	case PCDCompressed:
		return readPCDCompressed(in, header)
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
}

// maxPreallocPoints caps the capacity taken from a header's POINTS; larger clouds grow as read.
const maxPreallocPoints = 1 << 16

// lzfMaxExpansion bounds LZF output: a 3 byte back reference yields at most 264 bytes.
const lzfMaxExpansion = 88

func newPCDCloud(header pcdHeader) PointCloud {
	return NewWithPrealloc(int(min(header.points, maxPreallocPoints)))
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := newPCDCloud(header)
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != header.fields.count() {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		point := make([]float64, len(tokens))
		for j, token := range tokens {
			point[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Errorf("invalid point %d field %s: %s", i, token, err)
			}
		}
		if err := setPCDPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := newPCDCloud(header)
	stride := 0
	for _, s := range header.size {
		stride += int(s)
	}
	buf := make([]byte, stride)
	point := make([]float64, header.fields.count())
	for i := 0; i < int(header.points); i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		offset := 0
		for j := range point {
			point[j] = decodePCDField(buf[offset:offset+int(header.size[j])], header.typ[j])
			offset += int(header.size[j])
		}
		if err := setPCDPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDCompressed(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	var sizes [8]byte
	if _, err := io.ReadFull(in, sizes[:]); err != nil {
		return nil, errors.Wrap(err, "reading compressed sizes")
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[:4])
	rawSize := binary.LittleEndian.Uint32(sizes[4:])

	if header.points > math.MaxUint32 {
		return nil, errors.Errorf("compressed block cannot hold %d points", header.points)
	}
	expected := uint64(0)
	for _, s := range header.size {
		expected += s * header.points
	}
	if uint64(rawSize) != expected {
		return nil, errors.Errorf("compressed block expands to %d bytes, header needs %d", rawSize, expected)
	}

	compressed, err := io.ReadAll(io.LimitReader(in, int64(compressedSize)))
	if err != nil {
		return nil, errors.Wrap(err, "reading compressed block")
	}
	if len(compressed) != int(compressedSize) {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "reading compressed block of %d bytes", compressedSize)
	}
	if uint64(rawSize) > uint64(compressedSize)*lzfMaxExpansion {
		return nil, errors.Errorf("compressed block of %d bytes cannot expand to %d", compressedSize, rawSize)
	}
	raw := make([]byte, rawSize)
	if rawSize > 0 {
		n, err := lzf.Decompress(compressed, raw)
		if err != nil {
			return nil, errors.Wrap(err, "decompressing pcd data")
		}
		if uint32(n) != rawSize {
			return nil, errors.Errorf("decompressed %d bytes, expected %d", n, rawSize)
		}
	}

	// fields are stored one after the other, each for every point
	starts := make([]int, len(header.size))
	offset := 0
	for j, s := range header.size {
		starts[j] = offset
		offset += int(s) * int(header.points)
	}

	pc := newPCDCloud(header)
	point := make([]float64, header.fields.count())
	for i := 0; i < int(header.points); i++ {
		for j := range point {
			size := int(header.size[j])
			at := starts[j] + i*size
			point[j] = decodePCDField(raw[at:at+size], header.typ[j])
		}
		if err := setPCDPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// decodePCDField decodes one little endian field.
func decodePCDField(b []byte, typ pcdValType) float64 {
	switch typ {
	case pcdValFloat:
		if len(b) == 8 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case pcdValInt:
		switch len(b) {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(b)))
		default:
			return float64(int32(binary.LittleEndian.Uint32(b)))
		}
	default:
		switch len(b) {
		case 1:
			return float64(b[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(b))
		default:
			return float64(binary.LittleEndian.Uint32(b))
		}
	}
}

func setPCDPoint(pc PointCloud, slice []float64, header pcdHeader) error {
	pos := header.toWorld(r3.Vector{X: slice[0], Y: slice[1], Z: slice[2]})
	var data Data
	switch header.fields {
	case pcdPointOnly:
		data = NewBasicData()
	case pcdPointColor:
		c := slice[3]
		// PCL packs rgb into the bits of a float
		if header.typ[3] == pcdValFloat && header.size[3] == 4 {
			c = float64(math.Float32bits(float32(c)))
		}
		data = NewColoredData(pcdIntToColor(int(c)))
	case pcdPointLabel:
		data = NewLabeledData(int(slice[3]))
	default:
		return errors.Errorf("unsupported pcd field type %d", header.fields)
	}
	return pc.Set(pos, data)
}

// toWorld applies the VIEWPOINT pose to a point: rotate, then translate.
func (h pcdHeader) toWorld(p r3.Vector) r3.Vector {
	if h.rotation == (quat.Number{Real: 1}) {
		return p.Add(h.translation)
	}
	pq := quat.Number{Imag: p.X, Jmag: p.Y, Kmag: p.Z}
	rotated := quat.Mul(quat.Mul(h.rotation, pq), quat.Conj(h.rotation))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}.Add(h.translation)
}

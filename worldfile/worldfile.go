// Package worldfile stores octree buffers on disk. A world file is a fixed header followed by a
// node section and a cell section; each section may be LZF compressed.
package worldfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/svo/logging"
	"go.viam.com/svo/octree"
)

// Ext is the file extension of world files.
const Ext = ".svo"

const (
	magic   = "SVOW"
	version = 1

	headerSize  = 8
	sectionSize = 16

	flagCompressed = 1 << 0

	// maxSection bounds the declared size of one section.
	maxSection = 1 << 34
	// lzfMaxExpansion bounds LZF output: a 3 byte back reference yields at most 264 bytes.
	lzfMaxExpansion = 88
)

// Kind is the array form stored in a file.
type Kind uint8

const (
	// KindCompiled holds a compiled node buffer and its cell buffer.
	KindCompiled Kind = iota + 1
	// KindDense holds a dense buffer and no cells.
	KindDense
)

func (k Kind) String() string {
	switch k {
	case KindCompiled:
		return "compiled"
	case KindDense:
		return "dense"
	default:
		return "unknown"
	}
}

// Header describes the payload of a world file.
type Header struct {
	Kind  Kind
	Depth uint8
	// Compressed asks Write to LZF compress each section. A section that does not shrink is stored
	// raw regardless.
	Compressed bool
}

// Payload is the raw buffers of a world.
type Payload struct {
	Nodes []byte
	Cells []byte
}

// IsWorldFile returns whether path names a world file.
func IsWorldFile(path string) bool {
	return filepath.Ext(path) == Ext
}

// Write encodes header and payload to w.
func Write(w io.Writer, h Header, p Payload) error {
	if h.Kind != KindCompiled && h.Kind != KindDense {
		return errors.Errorf("unknown world kind %d", h.Kind)
	}
	if h.Kind == KindDense && len(p.Cells) != 0 {
		return errors.New("dense worlds carry no cell buffer")
	}

	var head [headerSize]byte
	copy(head[:4], magic)
	head[4] = version
	head[5] = byte(h.Kind)
	head[6] = h.Depth
	if h.Compressed {
		head[7] = flagCompressed
	}
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	for _, section := range [][]byte{p.Nodes, p.Cells} {
		if err := writeSection(w, section, h.Compressed); err != nil {
			return err
		}
	}
	return nil
}

// writeSection writes the raw and stored lengths, then the stored bytes. Equal lengths mean the
// section is stored raw.
func writeSection(w io.Writer, data []byte, compress bool) error {
	stored := data
	if compress && len(data) > 0 {
		out := make([]byte, len(data))
		// Compress fails once the output would not fit, which also means it would not shrink.
		if n, err := lzf.Compress(data, out); err == nil && n > 0 && n < len(data) {
			stored = out[:n]
		}
	}
	var lens [sectionSize]byte
	binary.LittleEndian.PutUint64(lens[:8], uint64(len(data)))
	binary.LittleEndian.PutUint64(lens[8:], uint64(len(stored)))
	if _, err := w.Write(lens[:]); err != nil {
		return err
	}
	_, err := w.Write(stored)
	return err
}

// Read decodes a world file written by Write.
func Read(r io.Reader) (Header, Payload, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Header{}, Payload{}, errors.Wrap(err, "reading world header")
	}
	if string(head[:4]) != magic {
		return Header{}, Payload{}, errors.New("not a world file")
	}
	if head[4] != version {
		return Header{}, Payload{}, errors.Errorf("unsupported world file version %d", head[4])
	}
	h := Header{
		Kind:       Kind(head[5]),
		Depth:      head[6],
		Compressed: head[7]&flagCompressed != 0,
	}
	if h.Kind != KindCompiled && h.Kind != KindDense {
		return Header{}, Payload{}, errors.Errorf("unknown world kind %d", h.Kind)
	}

	var p Payload
	var err error
	if p.Nodes, err = readSection(r); err != nil {
		return Header{}, Payload{}, errors.Wrap(err, "reading node section")
	}
	if p.Cells, err = readSection(r); err != nil {
		return Header{}, Payload{}, errors.Wrap(err, "reading cell section")
	}
	return h, p, nil
}

func readSection(r io.Reader) ([]byte, error) {
	var lens [sectionSize]byte
	if _, err := io.ReadFull(r, lens[:]); err != nil {
		return nil, err
	}
	rawLen := binary.LittleEndian.Uint64(lens[:8])
	storedLen := binary.LittleEndian.Uint64(lens[8:])
	if rawLen > maxSection || storedLen > rawLen {
		return nil, errors.Errorf("invalid section lengths %d/%d", storedLen, rawLen)
	}
	stored, err := io.ReadAll(io.LimitReader(r, int64(storedLen)))
	if err != nil {
		return nil, err
	}
	if uint64(len(stored)) != storedLen {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "section holds %d of %d bytes", len(stored), storedLen)
	}
	if storedLen == rawLen {
		return stored, nil
	}
	if rawLen > storedLen*lzfMaxExpansion {
		return nil, errors.Errorf("section of %d bytes cannot expand to %d", storedLen, rawLen)
	}
	raw := make([]byte, rawLen)
	n, err := lzf.Decompress(stored, raw)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing section")
	}
	if uint64(n) != rawLen {
		return nil, errors.Errorf("section expanded to %d bytes, expected %d", n, rawLen)
	}
	return raw, nil
}

// Encode captures the buffers of a compiled or dense octree.
func Encode(tree octree.Octree, compress bool) (Header, Payload, error) {
	h := Header{Depth: tree.Depth(), Compressed: compress}
	nodes, err := tree.MarshalBinary()
	if err != nil {
		return Header{}, Payload{}, err
	}
	p := Payload{Nodes: nodes}
	switch t := tree.(type) {
	case *octree.Compiled:
		h.Kind = KindCompiled
		p.Cells = t.MarshalCells()
	case *octree.Dense:
		h.Kind = KindDense
	default:
		return Header{}, Payload{}, errors.Errorf("cannot encode octree of type %T", tree)
	}
	return h, p, nil
}

// Decode rebuilds and validates the octree stored in a payload.
func Decode(h Header, p Payload, logger logging.Logger) (octree.Octree, error) {
	switch h.Kind {
	case KindCompiled:
		c, err := octree.UnmarshalCompiled(h.Depth, p.Nodes, p.Cells)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindDense:
		d, err := octree.UnmarshalDense(h.Depth, p.Nodes, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, errors.Errorf("unknown world kind %d", h.Kind)
	}
}

// Save writes tree to path.
func Save(path string, tree octree.Octree, compress bool, logger logging.Logger) (err error) {
	h, p, err := Encode(tree, compress)
	if err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = Write(w, h, p); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	logger.Infow("saved world", "path", path, "kind", h.Kind, "depth", h.Depth,
		"node_bytes", len(p.Nodes), "cell_bytes", len(p.Cells), "compressed", compress)
	return nil
}

// Load reads the octree stored at path.
func Load(path string, logger logging.Logger) (octree.Octree, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	h, p, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	tree, err := Decode(h, p, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %q", path)
	}
	logger.Debugw("loaded world", "path", path, "kind", h.Kind, "depth", h.Depth)
	return tree, nil
}

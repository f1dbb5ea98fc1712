package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

const metadataKey = "__metadata__"

// Supported dtypes. Only F32 is written.
const (
	DTypeF32  = "F32"
	DTypeF64  = "F64"
	DTypeF16  = "F16"
	DTypeBF16 = "BF16"
	DTypeI64  = "I64"
	DTypeI32  = "I32"
)

// SafeTensorHeader is one tensor record of the JSON header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// ReadOptions controls checkpoint loading.
type ReadOptions struct {
	// SkipChecksum disables digest verification.
	SkipChecksum bool
}

// WriteSafeTensors writes stateDict to w as F32 tensors sorted by name.
// The digest of the data section is added to metadata under ChecksumKey.
func WriteSafeTensors(w io.Writer, stateDict map[string]*tensor.Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(stateDict))
	for name, t := range stateDict {
		if t == nil {
			return fmt.Errorf("tensor %q is nil", name)
		}
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var data bytes.Buffer
	header := make(map[string]any, len(names)+1)
	var offset int64
	for _, name := range names {
		t := stateDict[name]
		begin := offset
		for _, v := range t.Data() {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			data.Write(b[:])
		}
		offset += int64(4 * t.NumElements())
		header[name] = SafeTensorHeader{
			DType:       DTypeF32,
			Shape:       append([]int{}, t.Shape()...),
			DataOffsets: [2]int64{begin, offset},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[ChecksumKey] = ComputeChecksum(data.Bytes())
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	// Pad with spaces to 8-byte alignment.
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// ReadSafeTensors decodes a SafeTensors stream into float32 tensors and
// returns them with the file metadata.
func ReadSafeTensors(r io.Reader, opts ReadOptions) (map[string]*tensor.Tensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, &ValidationError{
			Type:    "header_too_large",
			Details: fmt.Sprintf("%d bytes, max %d", headerSize, MaxHeaderSize),
			Err:     ErrHeaderTooLarge,
		}
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	entries, metadata, err := parseHeader(headerJSON)
	if err != nil {
		return nil, nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := validateTensorOffsets(entries, int64(len(data))); err != nil {
		return nil, nil, err
	}
	if stored, ok := metadata[ChecksumKey]; ok && !opts.SkipChecksum {
		if err := ValidateChecksum(data, stored); err != nil {
			return nil, nil, err
		}
	}

	out := make(map[string]*tensor.Tensor, len(entries))
	for _, e := range entries {
		values, err := decode(e.DType, data[e.Begin:e.End])
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", e.Name, err)
		}
		t, err := tensor.FromSlice(values, tensor.Shape(e.Shape))
		if err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", e.Name, err)
		}
		out[e.Name] = t
	}
	return out, metadata, nil
}

func parseHeader(headerJSON []byte) ([]tensorEntry, map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, &ValidationError{Type: "header", Details: err.Error(), Err: ErrMalformedHeader}
	}

	metadata := map[string]string{}
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, &ValidationError{Type: "metadata", Details: err.Error(), Err: ErrMalformedHeader}
		}
		delete(raw, metadataKey)
	}

	entries := make([]tensorEntry, 0, len(raw))
	for name, msg := range raw {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, &ValidationError{Type: "header", Tensor: name, Details: err.Error(), Err: ErrMalformedHeader}
		}
		entries = append(entries, tensorEntry{
			Name:  name,
			DType: h.DType,
			Shape: h.Shape,
			Begin: h.DataOffsets[0],
			End:   h.DataOffsets[1],
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, metadata, nil
}

func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case DTypeF32, DTypeI32:
		return 4, nil
	case DTypeF64, DTypeI64:
		return 8, nil
	case DTypeF16, DTypeBF16:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}

func decode(dtype string, b []byte) ([]float32, error) {
	size, err := dtypeSize(dtype)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(b)/size)
	le := binary.LittleEndian
	for i := range out {
		p := b[i*size:]
		switch dtype {
		case DTypeF32:
			out[i] = math.Float32frombits(le.Uint32(p))
		case DTypeF64:
			out[i] = float32(math.Float64frombits(le.Uint64(p)))
		case DTypeI32:
			out[i] = float32(int32(le.Uint32(p)))
		case DTypeI64:
			out[i] = float32(int64(le.Uint64(p)))
		case DTypeBF16:
			out[i] = math.Float32frombits(uint32(le.Uint16(p)) << 16)
		case DTypeF16:
			out[i] = halfToFloat32(le.Uint16(p))
		}
	}
	return out, nil
}

// halfToFloat32 widens an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch {
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	case exp == 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
	}
}

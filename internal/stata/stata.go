// Package stata reads Stata .dta files in formats 117 and 118 (Stata 13-14+).
// It decodes the header, variable descriptors and the data section; value
// labels and strLs are skipped. Numeric missing codes come back as NaN.
package stata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Storage type codes from the dta specification. Codes 1..2045 are
// fixed-width strings of that many bytes.
const (
	typeDouble uint16 = 65526
	typeFloat  uint16 = 65527
	typeLong   uint16 = 65528
	typeInt    uint16 = 65529
	typeByte   uint16 = 65530
	typeStrL   uint16 = 32768
)

// Largest nonmissing value per integer storage type. Anything above is one
// of Stata's 27 missing codes (., .a .. .z).
const (
	maxByte = 100
	maxInt  = 32740
	maxLong = 2147483620
)

// Smallest missing code for the float types, bit-exact: the "." code sits
// one ULP above the largest nonmissing value, too close for a decimal
// literal to round reliably.
var (
	missDouble = math.Float64frombits(0x7fe0000000000000)
	missFloat  = math.Float32frombits(0x7f000000)
)

// Variable describes one column of the file.
type Variable struct {
	Name   string
	Type   uint16
	Format string
	Label  string
}

// IsNumeric reports whether the variable holds a numeric storage type.
func (v Variable) IsNumeric() bool {
	switch v.Type {
	case typeDouble, typeFloat, typeLong, typeInt, typeByte:
		return true
	}
	return false
}

// Dataset is a fully decoded file, restricted to the kept variables.
type Dataset struct {
	Release int
	Label   string
	Vars    []Variable
	N       int

	numeric map[string][]float64
	strs    map[string][]string
}

// ReadFile opens and decodes path. With keep names given, only those
// variables are retained; an unknown keep name is an error so a renamed
// upstream column fails loudly instead of joining as all-missing.
func ReadFile(path string, keep ...string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stata: %w", err)
	}
	defer f.Close()

	ds, err := Read(f, keep...)
	if err != nil {
		return nil, fmt.Errorf("stata: %s: %w", path, err)
	}
	return ds, nil
}

// Read decodes a .dta stream.
func Read(r io.Reader, keep ...string) (*Dataset, error) {
	d := &decoder{br: bufio.NewReaderSize(r, 1<<16)}
	return d.decode(keep)
}

// Has reports whether a kept variable exists.
func (d *Dataset) Has(name string) bool {
	_, okn := d.numeric[name]
	_, oks := d.strs[name]
	return okn || oks
}

// Float returns the numeric value at obs. ok is false when the cell holds a
// missing code or the variable is unknown or non-numeric.
func (d *Dataset) Float(name string, obs int) (float64, bool) {
	col, ok := d.numeric[name]
	if !ok || obs < 0 || obs >= len(col) {
		return 0, false
	}
	v := col[obs]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Int is Float truncated toward zero.
func (d *Dataset) Int(name string, obs int) (int, bool) {
	v, ok := d.Float(name, obs)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// String returns the string value at obs, or "" for numeric and unknown
// variables.
func (d *Dataset) String(name string, obs int) string {
	col, ok := d.strs[name]
	if !ok || obs < 0 || obs >= len(col) {
		return ""
	}
	return col[obs]
}

type decoder struct {
	br  *bufio.Reader
	bo  binary.ByteOrder
	rel int
}

func (d *decoder) decode(keep []string) (*Dataset, error) {
	if err := d.expect("<stata_dta><header><release>"); err != nil {
		return nil, err
	}
	rel, err := d.ascii(3)
	if err != nil {
		return nil, err
	}
	switch rel {
	case "117":
		d.rel = 117
	case "118":
		d.rel = 118
	default:
		return nil, fmt.Errorf("unsupported dta release %q", rel)
	}
	if err := d.expect("</release><byteorder>"); err != nil {
		return nil, err
	}
	order, err := d.ascii(3)
	if err != nil {
		return nil, err
	}
	switch order {
	case "LSF":
		d.bo = binary.LittleEndian
	case "MSF":
		d.bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("unknown byte order %q", order)
	}
	if err := d.expect("</byteorder><K>"); err != nil {
		return nil, err
	}
	k, err := d.u16()
	if err != nil {
		return nil, err
	}
	if err := d.expect("</K><N>"); err != nil {
		return nil, err
	}
	var n uint64
	if d.rel == 118 {
		if n, err = d.u64(); err != nil {
			return nil, err
		}
	} else {
		n32, err := d.u32()
		if err != nil {
			return nil, err
		}
		n = uint64(n32)
	}
	if err := d.expect("</N><label>"); err != nil {
		return nil, err
	}
	label, err := d.prefixedString()
	if err != nil {
		return nil, err
	}
	if err := d.expect("</label><timestamp>"); err != nil {
		return nil, err
	}
	tsLen, err := d.u8()
	if err != nil {
		return nil, err
	}
	if _, err := d.bytes(int(tsLen)); err != nil {
		return nil, err
	}
	if err := d.expect("</timestamp></header>"); err != nil {
		return nil, err
	}

	// The map's 14 offsets allow random access; this decoder reads the
	// sections in their fixed order instead.
	if err := d.expect("<map>"); err != nil {
		return nil, err
	}
	if _, err := d.bytes(14 * 8); err != nil {
		return nil, err
	}
	if err := d.expect("</map><variable_types>"); err != nil {
		return nil, err
	}
	types := make([]uint16, k)
	for i := range types {
		if types[i], err = d.u16(); err != nil {
			return nil, err
		}
	}
	if err := d.expect("</variable_types><varnames>"); err != nil {
		return nil, err
	}
	names := make([]string, k)
	for i := range names {
		if names[i], err = d.fixedString(d.width(129, 33)); err != nil {
			return nil, err
		}
	}
	if err := d.expect("</varnames><sortlist>"); err != nil {
		return nil, err
	}
	if _, err := d.bytes(int(k+1) * 2); err != nil {
		return nil, err
	}
	if err := d.expect("</sortlist><formats>"); err != nil {
		return nil, err
	}
	formats := make([]string, k)
	for i := range formats {
		if formats[i], err = d.fixedString(d.width(57, 49)); err != nil {
			return nil, err
		}
	}
	if err := d.expect("</formats><value_label_names>"); err != nil {
		return nil, err
	}
	for i := 0; i < int(k); i++ {
		if _, err := d.bytes(d.width(129, 33)); err != nil {
			return nil, err
		}
	}
	if err := d.expect("</value_label_names><variable_labels>"); err != nil {
		return nil, err
	}
	labels := make([]string, k)
	for i := range labels {
		if labels[i], err = d.fixedString(d.width(321, 81)); err != nil {
			return nil, err
		}
	}
	if err := d.expect("</variable_labels>"); err != nil {
		return nil, err
	}
	if err := d.skipCharacteristics(); err != nil {
		return nil, err
	}

	vars := make([]Variable, k)
	for i := range vars {
		vars[i] = Variable{Name: names[i], Type: types[i], Format: formats[i], Label: labels[i]}
	}

	keepIdx, err := selectVars(vars, keep)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Release: d.rel,
		Label:   label,
		N:       int(n),
		numeric: make(map[string][]float64),
		strs:    make(map[string][]string),
	}
	for _, i := range keepIdx {
		v := vars[i]
		ds.Vars = append(ds.Vars, v)
		if v.Type == typeStrL {
			return nil, fmt.Errorf("variable %s: strL storage not supported", v.Name)
		}
		if v.IsNumeric() {
			ds.numeric[v.Name] = make([]float64, n)
		} else {
			ds.strs[v.Name] = make([]string, n)
		}
	}

	if err := d.expect("<data>"); err != nil {
		return nil, err
	}
	offsets, rowSize := rowLayout(vars)
	row := make([]byte, rowSize)
	for obs := 0; obs < int(n); obs++ {
		if _, err := io.ReadFull(d.br, row); err != nil {
			return nil, fmt.Errorf("data row %d: %w", obs, err)
		}
		for _, i := range keepIdx {
			v := vars[i]
			cell := row[offsets[i]:]
			if v.IsNumeric() {
				ds.numeric[v.Name][obs] = d.number(v.Type, cell)
			} else {
				ds.strs[v.Name][obs] = cstr(cell[:v.Type])
			}
		}
	}
	if err := d.expect("</data>"); err != nil {
		return nil, err
	}
	// strLs and value labels follow; nothing below needs them.

	return ds, nil
}

// width picks the 118 or 117 field width.
func (d *decoder) width(w118, w117 int) int {
	if d.rel == 118 {
		return w118
	}
	return w117
}

func (d *decoder) number(typ uint16, b []byte) float64 {
	switch typ {
	case typeDouble:
		v := math.Float64frombits(d.bo.Uint64(b))
		if math.IsNaN(v) || v >= missDouble {
			return math.NaN()
		}
		return v
	case typeFloat:
		v := math.Float32frombits(d.bo.Uint32(b))
		if v != v || v >= missFloat {
			return math.NaN()
		}
		return float64(v)
	case typeLong:
		v := int32(d.bo.Uint32(b))
		if v > maxLong {
			return math.NaN()
		}
		return float64(v)
	case typeInt:
		v := int16(d.bo.Uint16(b))
		if v > maxInt {
			return math.NaN()
		}
		return float64(v)
	case typeByte:
		v := int8(b[0])
		if v > maxByte {
			return math.NaN()
		}
		return float64(v)
	}
	return math.NaN()
}

func (d *decoder) skipCharacteristics() error {
	if err := d.expect("<characteristics>"); err != nil {
		return err
	}
	for {
		peek, err := d.br.Peek(4)
		if err != nil {
			return fmt.Errorf("characteristics: %w", err)
		}
		if string(peek) != "<ch>" {
			break
		}
		if err := d.expect("<ch>"); err != nil {
			return err
		}
		size, err := d.u32()
		if err != nil {
			return err
		}
		if _, err := d.bytes(int(size)); err != nil {
			return err
		}
		if err := d.expect("</ch>"); err != nil {
			return err
		}
	}
	return d.expect("</characteristics>")
}

func (d *decoder) expect(tag string) error {
	got, err := d.bytes(len(tag))
	if err != nil {
		return fmt.Errorf("expected %q: %w", tag, err)
	}
	if string(got) != tag {
		return fmt.Errorf("expected %q, found %q", tag, got)
	}
	return nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(d.br, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *decoder) ascii(n int) (string, error) {
	b, err := d.bytes(n)
	return string(b), err
}

func (d *decoder) fixedString(n int) (string, error) {
	b, err := d.bytes(n)
	if err != nil {
		return "", err
	}
	return cstr(b), nil
}

// prefixedString reads the dataset label: u16 length in 118, u8 in 117.
func (d *decoder) prefixedString() (string, error) {
	var n int
	if d.rel == 118 {
		v, err := d.u16()
		if err != nil {
			return "", err
		}
		n = int(v)
	} else {
		v, err := d.u8()
		if err != nil {
			return "", err
		}
		n = int(v)
	}
	return d.ascii(n)
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.br.ReadByte()
	return b, err
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return d.bo.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return d.bo.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return d.bo.Uint64(b), nil
}

// rowLayout returns each variable's byte offset within a data row and the
// total row size.
func rowLayout(vars []Variable) ([]int, int) {
	offsets := make([]int, len(vars))
	off := 0
	for i, v := range vars {
		offsets[i] = off
		off += cellSize(v.Type)
	}
	return offsets, off
}

func cellSize(typ uint16) int {
	switch typ {
	case typeDouble:
		return 8
	case typeFloat, typeLong:
		return 4
	case typeInt:
		return 2
	case typeByte:
		return 1
	case typeStrL:
		return 8 // (v, o) pointer into the strls section
	default:
		return int(typ) // fixed-width str1..str2045
	}
}

func selectVars(vars []Variable, keep []string) ([]int, error) {
	if len(keep) == 0 {
		idx := make([]int, len(vars))
		for i := range vars {
			idx[i] = i
		}
		return idx, nil
	}
	byName := make(map[string]int, len(vars))
	for i, v := range vars {
		byName[v.Name] = i
	}
	idx := make([]int, 0, len(keep))
	var missing []string
	for _, name := range keep {
		i, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		idx = append(idx, i)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("variables not in file: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// cstr trims a fixed-width field at its first NUL.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

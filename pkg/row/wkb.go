package row

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// wkbGeometryType enumerates the OGC WKB geometry type codes this
// reader recognizes. Only the base 2D types are listed -- the Z/M/ZM
// variants PostGIS flags in the high bits of the type word are
// accepted (stripped before the lookup) but not distinguished,
// because nothing downstream needs to tell a Point from a PointZ,
// only that the bytes are a real geometry value and what its SRID is.
type wkbGeometryType uint32

const (
	wkbPoint              wkbGeometryType = 1
	wkbLineString         wkbGeometryType = 2
	wkbPolygon            wkbGeometryType = 3
	wkbMultiPoint         wkbGeometryType = 4
	wkbMultiLineString    wkbGeometryType = 5
	wkbMultiPolygon       wkbGeometryType = 6
	wkbGeometryCollection wkbGeometryType = 7
)

func (t wkbGeometryType) String() string {
	switch t {
	case wkbPoint:
		return "POINT"
	case wkbLineString:
		return "LINESTRING"
	case wkbPolygon:
		return "POLYGON"
	case wkbMultiPoint:
		return "MULTIPOINT"
	case wkbMultiLineString:
		return "MULTILINESTRING"
	case wkbMultiPolygon:
		return "MULTIPOLYGON"
	case wkbGeometryCollection:
		return "GEOMETRYCOLLECTION"
	default:
		return "UNKNOWN"
	}
}

func (t wkbGeometryType) valid() bool {
	return t >= wkbPoint && t <= wkbGeometryCollection
}

// ewkbSRIDFlag is the PostGIS EWKB extension bit in the type word that
// signals a 4-byte SRID follows the type. The Z/M flag bits live in
// the same word; they're masked off rather than rejected, since a
// Z/M/ZM geometry is still a geometry as far as this reader cares.
const (
	ewkbSRIDFlag = 0x20000000
	ewkbZFlag    = 0x80000000
	ewkbMFlag    = 0x40000000
)

type wkbHeader struct {
	Type wkbGeometryType
	SRID uint32
}

// parseWKBHeader reads the byte-order marker, geometry type, and
// optional EWKB SRID from the front of a WKB-encoded geometry. It
// never walks into the coordinate body that follows the header --
// replibridge only needs to confirm a value is real geometry data and
// recover its SRID, never to compute with the coordinates themselves.
func parseWKBHeader(data []byte) (wkbHeader, error) {
	if len(data) < 5 {
		return wkbHeader{}, fmt.Errorf("row: wkb data too short: %d bytes", len(data))
	}
	var order binary.ByteOrder
	switch data[0] {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return wkbHeader{}, fmt.Errorf("row: wkb invalid byte order marker 0x%x", data[0])
	}
	rawType := order.Uint32(data[1:5])
	hdr := wkbHeader{Type: wkbGeometryType(rawType &^ (ewkbSRIDFlag | ewkbZFlag | ewkbMFlag))}
	if rawType&ewkbSRIDFlag != 0 {
		if len(data) < 9 {
			return wkbHeader{}, fmt.Errorf("row: wkb truncated SRID")
		}
		hdr.SRID = order.Uint32(data[5:9])
	}
	if !hdr.Type.valid() {
		return wkbHeader{}, fmt.Errorf("row: wkb unknown geometry type %d", rawType)
	}
	return hdr, nil
}

// ParseWKB validates raw as a geometry value and returns its SRID and
// OGC geometry type name. It accepts the plain WKB/EWKB form
// ST_AsBinary and PostGIS produce (byte order, type, optional SRID,
// body) and MySQL's internal storage form, which prefixes that same
// structure with its own little-endian 4-byte SRID -- a column read
// generically via database/sql, without an explicit ST_AsBinary()
// wrapper, comes back in whichever of those two shapes the source
// engine uses natively.
func ParseWKB(raw []byte) (srid uint32, geomType string, err error) {
	if hdr, err := parseWKBHeader(raw); err == nil {
		return hdr.SRID, hdr.Type.String(), nil
	}
	if len(raw) < 4 {
		return 0, "", fmt.Errorf("row: wkb data too short: %d bytes", len(raw))
	}
	hdr, err := parseWKBHeader(raw[4:])
	if err != nil {
		return 0, "", fmt.Errorf("row: not a recognizable wkb value: %w", err)
	}
	srid = hdr.SRID
	if srid == 0 {
		srid = binary.LittleEndian.Uint32(raw[:4])
	}
	return srid, hdr.Type.String(), nil
}

// decodeWKBBytes recognizes a geometry value in whatever shape a
// generic database/sql scan hands back: raw WKB/MySQL-internal bytes,
// or the hex-encoded EWKB text lib/pq returns for a text-protocol scan
// of a PostGIS geometry/geography column. It returns ok=false rather
// than an error for anything that doesn't parse, since callers use it
// as a type-sniffing branch alongside other []byte interpretations
// (decimal, plain string), not as the only possible one.
func decodeWKBBytes(raw []byte) (wkb []byte, ok bool) {
	if _, _, err := ParseWKB(raw); err == nil {
		return raw, true
	}
	if decoded, err := hex.DecodeString(string(raw)); err == nil {
		if _, _, err := ParseWKB(decoded); err == nil {
			return decoded, true
		}
	}
	return nil, false
}

// NewGeometryFromWKB validates raw as a WKB/EWKB geometry value via
// ParseWKB before wrapping it in a ColValue, so a Geometry ColValue
// can never hold bytes that aren't actually geometry data.
func NewGeometryFromWKB(raw []byte) (ColValue, error) {
	if _, _, err := ParseWKB(raw); err != nil {
		return ColValue{}, err
	}
	return NewGeometry(raw), nil
}

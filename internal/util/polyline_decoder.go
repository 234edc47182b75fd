package util

import "errors"

var ErrTruncatedPolyline = errors.New("polyline: truncated value")

// DecodePolyline converts a Google encoded polyline (precision 1e-5) into [lat, lng] pairs
func DecodePolyline(encoded string) ([][2]float64, error) {
	return DecodePolylineWithPrecision(encoded, 1e-5)
}

// DecodePolylineWithPrecision decodes a polyline with a custom precision factor.
// GraphHopper routes use 1e-6.
func DecodePolylineWithPrecision(encoded string, precision float64) ([][2]float64, error) {
	var points [][2]float64
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		dLat, next, err := decodeDelta(encoded, index)
		if err != nil {
			return points, err
		}
		dLng, next, err := decodeDelta(encoded, next)
		if err != nil {
			return points, err
		}
		index = next
		lat += dLat
		lng += dLng

		points = append(points, [2]float64{float64(lat) * precision, float64(lng) * precision})
	}

	return points, nil
}

// decodeDelta reads one zig-zag varint starting at index and returns it with the next offset
func decodeDelta(encoded string, index int) (int, int, error) {
	shift, result := 0, 0
	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncatedPolyline
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

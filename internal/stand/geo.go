package stand

import "math"

const earthRadiusMeters = 6371000.0

// haversineMeters returns the great-circle distance between two WGS84
// coordinates.
func haversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// boundingBox returns a longitude/latitude window that contains every point
// within radius metres of the centre. The window over-covers near the poles;
// candidates are re-checked with the exact distance afterwards.
func boundingBox(lon, lat, radiusMeters float64) (minLon, maxLon, minLat, maxLat float64) {
	dLat := radiusMeters / earthRadiusMeters * 180 / math.Pi

	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	dLon := dLat / cos

	return lon - dLon, lon + dLon, lat - dLat, lat + dLat
}

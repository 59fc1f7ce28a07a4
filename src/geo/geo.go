// Package geo converts between geodetic and earth-centered earth-fixed (ECEF)
// coordinates on the WGS84 ellipsoid, and measures distances in the ECEF
// frame.
//
// Distance is the straight-line (chord) distance between two ECEF points. It is
// the only metric used to evaluate distance budgets. At the ranges a message is
// allowed to travel (meters to tens of kilometers) it is indistinguishable from
// the great-circle distance, and it is cheap and monotonic.
package geo

import (
	"fmt"
	"math"
)

// WGS84 ellipsoid parameters.
const (
	// SemiMajorAxis is the equatorial radius a, in meters.
	SemiMajorAxis = 6378137.0

	// EccentricitySquared is the first eccentricity squared e².
	EccentricitySquared = 6.69437999014e-3
)

var (
	semiMinorAxis = SemiMajorAxis * math.Sqrt(1-EccentricitySquared)

	// second eccentricity squared e'² = (a²-b²)/b²
	secondEccentricitySquared = (SemiMajorAxis*SemiMajorAxis - semiMinorAxis*semiMinorAxis) /
		(semiMinorAxis * semiMinorAxis)
)

// GeoPoint is a geodetic position. Latitude and Longitude are in degrees,
// Altitude is the height above the ellipsoid in meters.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// String ...
func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.7f, %.7f, %.2fm)", p.Latitude, p.Longitude, p.Altitude)
}

// CartesianPoint is a position in the ECEF frame, in meters.
type CartesianPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the point translated by (dx, dy, dz).
func (c CartesianPoint) Add(dx, dy, dz float64) CartesianPoint {
	return CartesianPoint{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}
}

// String ...
func (c CartesianPoint) String() string {
	return fmt.Sprintf("[%.3f, %.3f, %.3f]", c.X, c.Y, c.Z)
}

// primeVerticalRadius returns N(φ), the radius of curvature in the prime
// vertical at geodetic latitude phi (radians).
func primeVerticalRadius(phi float64) float64 {
	s := math.Sin(phi)
	return SemiMajorAxis / math.Sqrt(1-EccentricitySquared*s*s)
}

// ToCartesian projects a geodetic point into the ECEF frame.
func ToCartesian(p GeoPoint) CartesianPoint {
	phi := p.Latitude * math.Pi / 180
	lambda := p.Longitude * math.Pi / 180

	n := primeVerticalRadius(phi)

	cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)

	return CartesianPoint{
		X: (n + p.Altitude) * cosPhi * math.Cos(lambda),
		Y: (n + p.Altitude) * cosPhi * math.Sin(lambda),
		Z: (n*(1-EccentricitySquared) + p.Altitude) * sinPhi,
	}
}

// ToGeo is the inverse of ToCartesian. It uses Bowring's closed form with a
// single iteration, which is accurate to well under a millimeter for points
// near the surface of the earth.
func ToGeo(c CartesianPoint) GeoPoint {
	a := SemiMajorAxis
	b := semiMinorAxis

	p := math.Hypot(c.X, c.Y)

	theta := math.Atan2(c.Z*a, p*b)
	sinTheta, cosTheta := math.Sin(theta), math.Cos(theta)

	phi := math.Atan2(
		c.Z+secondEccentricitySquared*b*sinTheta*sinTheta*sinTheta,
		p-EccentricitySquared*a*cosTheta*cosTheta*cosTheta,
	)
	lambda := math.Atan2(c.Y, c.X)

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)

	// Stable at the poles, unlike p/cos(φ) - N.
	h := p*cosPhi + c.Z*sinPhi - a*math.Sqrt(1-EccentricitySquared*sinPhi*sinPhi)

	return GeoPoint{
		Latitude:  phi * 180 / math.Pi,
		Longitude: lambda * 180 / math.Pi,
		Altitude:  h,
	}
}

// Distance returns the Euclidean distance, in meters, between two ECEF
// points.
func Distance(from, to CartesianPoint) float64 {
	dx := to.X - from.X
	dy := to.Y - from.Y
	dz := to.Z - from.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// GeoDistance is a convenience wrapper projecting both points before calling
// Distance.
func GeoDistance(from, to GeoPoint) float64 {
	return Distance(ToCartesian(from), ToCartesian(to))
}
